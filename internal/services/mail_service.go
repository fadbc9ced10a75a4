package services

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"mime"
	"mime/multipart"
	"net"
	"net/mail"
	"net/smtp"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

const defaultMailTimeout = 10 * time.Second

// MailConfig holds SMTP settings.
type MailConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	// Timeout bounds one whole delivery: dial, handshake and DATA.
	Timeout time.Duration
}

// MailService sends multipart/alternative mail over SMTP. Each Send makes
// one delivery attempt.
type MailService struct {
	cfg     MailConfig
	enabled bool
	log     *zap.Logger
	deliver func(ctx context.Context, addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewMailService(cfg MailConfig, logger *zap.Logger) *MailService {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultMailTimeout
	}
	s := &MailService{
		cfg:     cfg,
		enabled: cfg.Host != "" && cfg.From != "",
		log:     logger,
	}
	s.deliver = s.smtpDeliver
	return s
}

// Enabled reports whether SMTP_HOST and SMTP_FROM are set.
func (s *MailService) Enabled() bool {
	return s.enabled
}

func (s *MailService) Send(ctx context.Context, msg Message) error {
	if !s.enabled {
		return errors.New("mail service not configured")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	body, err := s.compose(msg)
	if err != nil {
		return err
	}

	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))

	if err := s.deliver(ctx, addr, auth, s.cfg.From, msg.To, body); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
		s.log.Error("Failed to send email", zap.Strings("to", msg.To), zap.Error(err))
		return fmt.Errorf("send mail: %w", err)
	}
	s.log.Info("Email sent", zap.Strings("to", msg.To), zap.String("subject", msg.Subject))
	return nil
}

// smtpDeliver is smtp.SendMail with a deadline on the whole session.
// Cancelling ctx aborts any pending I/O.
func (s *MailService) smtpDeliver(ctx context.Context, addr string, a smtp.Auth, from string, to []string, msg []byte) error {
	deadline := time.Now().Add(s.cfg.Timeout)

	dialer := &net.Dialer{Timeout: s.cfg.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	if err := conn.SetDeadline(deadline); err != nil {
		conn.Close()
		return err
	}
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Now())
	})
	defer stop()

	c, err := smtp.NewClient(conn, s.cfg.Host)
	if err != nil {
		conn.Close()
		return err
	}
	defer c.Close()

	if err := c.Hello("localhost"); err != nil {
		return err
	}
	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: s.cfg.Host}); err != nil {
			return err
		}
	}
	if a != nil {
		if ok, _ := c.Extension("AUTH"); !ok {
			return errors.New("smtp: server doesn't support AUTH")
		}
		if err := c.Auth(a); err != nil {
			return err
		}
	}
	if err := c.Mail(from); err != nil {
		return err
	}
	for _, rcpt := range to {
		if err := c.Rcpt(rcpt); err != nil {
			return err
		}
	}
	w, err := c.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(msg); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return c.Quit()
}

func (s *MailService) compose(msg Message) ([]byte, error) {
	from := (&mail.Address{Name: msg.From, Address: s.cfg.From}).String()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	fmt.Fprintf(&buf, "To: %s\r\n", strings.Join(msg.To, ", "))
	fmt.Fprintf(&buf, "From: %s\r\n", from)
	fmt.Fprintf(&buf, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", msg.Subject))
	fmt.Fprintf(&buf, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	fmt.Fprintf(&buf, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(&buf, "Content-Type: multipart/alternative; boundary=%q\r\n", mw.Boundary())
	fmt.Fprintf(&buf, "\r\n")

	parts := []struct {
		contentType string
		body        string
	}{
		{"text/plain; charset=UTF-8", msg.TextBody},
		{"text/html; charset=UTF-8", msg.HTMLBody},
	}
	for _, p := range parts {
		w, err := mw.CreatePart(textproto.MIMEHeader{"Content-Type": {p.contentType}})
		if err != nil {
			return nil, err
		}
		if _, err := w.Write([]byte(p.body)); err != nil {
			return nil, err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
