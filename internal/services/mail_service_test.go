package services

import (
	"context"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net"
	"net/mail"
	"net/smtp"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestMailService_Disabled(t *testing.T) {
	s := NewMailService(MailConfig{}, zap.NewNop())
	require.False(t, s.Enabled())
	require.Error(t, s.Send(context.Background(), Message{To: []string{"mod@example.com"}}))
}

func TestMailService_SendComposesMultipart(t *testing.T) {
	s := NewMailService(MailConfig{
		Host:     "smtp.example.com",
		Port:     2525,
		Username: "user",
		Password: "pass",
		From:     "noreply@example.com",
	}, zap.NewNop())

	var (
		gotAddr string
		gotFrom string
		gotTo   []string
		gotMsg  []byte
		gotAuth smtp.Auth
	)
	s.deliver = func(_ context.Context, addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotAuth, gotFrom, gotTo, gotMsg = addr, a, from, to, msg
		return nil
	}

	err := s.Send(context.Background(), Message{
		To:       []string{"a@example.com", "b@example.com"},
		From:     "murmur",
		Subject:  "Request to delete comment: 7",
		HTMLBody: "<p>hello</p>",
		TextBody: "hello",
	})
	require.NoError(t, err)
	require.Equal(t, "smtp.example.com:2525", gotAddr)
	require.NotNil(t, gotAuth)
	require.Equal(t, "noreply@example.com", gotFrom)
	require.Equal(t, []string{"a@example.com", "b@example.com"}, gotTo)

	msg, err := mail.ReadMessage(strings.NewReader(string(gotMsg)))
	require.NoError(t, err)
	require.Equal(t, `"murmur" <noreply@example.com>`, msg.Header.Get("From"))
	require.Equal(t, "Request to delete comment: 7", msg.Header.Get("Subject"))

	mediaType, params, err := mime.ParseMediaType(msg.Header.Get("Content-Type"))
	require.NoError(t, err)
	require.Equal(t, "multipart/alternative", mediaType)

	mr := multipart.NewReader(msg.Body, params["boundary"])
	var types, bodies []string
	for {
		p, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		b, err := io.ReadAll(p)
		require.NoError(t, err)
		types = append(types, p.Header.Get("Content-Type"))
		bodies = append(bodies, string(b))
	}
	require.Equal(t, []string{"text/plain; charset=UTF-8", "text/html; charset=UTF-8"}, types)
	require.Equal(t, []string{"hello", "<p>hello</p>"}, bodies)
}

func TestMailService_SendError(t *testing.T) {
	s := NewMailService(MailConfig{Host: "smtp.example.com", Port: 25, From: "noreply@example.com"}, zap.NewNop())
	s.deliver = func(context.Context, string, smtp.Auth, string, []string, []byte) error {
		return errors.New("550 rejected")
	}
	err := s.Send(context.Background(), Message{To: []string{"a@example.com"}})
	require.ErrorContains(t, err, "550 rejected")
}

// silentSMTP accepts connections and never greets.
func silentSMTP(t *testing.T) (string, int) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	done := make(chan struct{})
	go func() {
		defer close(done)
		var conns []net.Conn
		defer func() {
			for _, c := range conns {
				c.Close()
			}
		}()
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conns = append(conns, conn)
		}
	}()
	t.Cleanup(func() {
		ln.Close()
		<-done
	})
	addr := ln.Addr().(*net.TCPAddr)
	return addr.IP.String(), addr.Port
}

func TestMailService_SilentServerTimesOut(t *testing.T) {
	host, port := silentSMTP(t)
	s := NewMailService(MailConfig{Host: host, Port: port, From: "noreply@example.com", Timeout: 200 * time.Millisecond}, zap.NewNop())

	start := time.Now()
	err := s.Send(context.Background(), Message{To: []string{"a@example.com"}})
	require.Error(t, err)
	require.Less(t, time.Since(start), 5*time.Second)

	var ne net.Error
	require.ErrorAs(t, err, &ne)
	require.True(t, ne.Timeout())
}

func TestMailService_StopsWaitingOnCancel(t *testing.T) {
	host, port := silentSMTP(t)
	s := NewMailService(MailConfig{Host: host, Port: port, From: "noreply@example.com", Timeout: time.Minute}, zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	err := s.Send(ctx, Message{To: []string{"a@example.com"}})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Less(t, time.Since(start), 5*time.Second)
}

// fakeSMTP runs a minimal server for one session and returns the DATA it
// received on the channel.
func fakeSMTP(t *testing.T) (string, int, <-chan string) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	got := make(chan string, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		tp := textproto.NewConn(conn)
		_ = tp.PrintfLine("220 localhost ESMTP")
		for {
			line, err := tp.ReadLine()
			if err != nil {
				return
			}
			switch cmd := strings.ToUpper(strings.SplitN(line, " ", 2)[0]); cmd {
			case "EHLO", "HELO":
				_ = tp.PrintfLine("250 localhost")
			case "MAIL", "RCPT":
				_ = tp.PrintfLine("250 OK")
			case "DATA":
				_ = tp.PrintfLine("354 go ahead")
				b, err := tp.ReadDotBytes()
				if err != nil {
					return
				}
				got <- string(b)
				_ = tp.PrintfLine("250 queued")
			case "QUIT":
				_ = tp.PrintfLine("221 bye")
				return
			default:
				_ = tp.PrintfLine("502 not implemented")
			}
		}
	}()
	addr := ln.Addr().(*net.TCPAddr)
	return addr.IP.String(), addr.Port, got
}

func TestMailService_DeliversOverSMTP(t *testing.T) {
	host, port, got := fakeSMTP(t)
	s := NewMailService(MailConfig{Host: host, Port: port, From: "noreply@example.com", Timeout: 5 * time.Second}, zap.NewNop())

	err := s.Send(context.Background(), Message{
		To:       []string{"mod@example.com"},
		From:     "murmur",
		Subject:  "Request to delete comment: 3",
		HTMLBody: "<p>hi</p>",
		TextBody: "hi",
	})
	require.NoError(t, err)

	select {
	case data := <-got:
		require.Contains(t, data, "Subject: Request to delete comment: 3")
		require.Contains(t, data, "multipart/alternative")
	case <-time.After(5 * time.Second):
		t.Fatal("server received no DATA")
	}
}
