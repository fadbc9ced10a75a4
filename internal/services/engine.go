//go:generate mockgen -destination=../mocks/mailer.go -package=mocks murmur/internal/services Mailer

package services

import (
	"context"
	"errors"
	"html/template"
	"strings"
	"time"
	"unicode/utf8"

	"murmur/internal/store"
	"murmur/internal/utils"

	"go.uber.org/zap"
)

const (
	maxTextLength = 500
	maxNameLength = 200
)

// Mailer delivers one message. Implementations make a single attempt.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// Message is an outgoing e-mail. From is the sender display name; the
// envelope address belongs to the Mailer.
type Message struct {
	To       []string
	From     string
	Subject  string
	HTMLBody string
	TextBody string
}

// ModerationConfig configures the report workflow.
type ModerationConfig struct {
	MaxAge        time.Duration
	AdminEmails   []string
	SenderName    string
	HostedAddress string
	// Template renders the HTML body of report mails. Nil uses the
	// built-in one.
	Template *template.Template
}

// Deps are the collaborators of an Engine, built once at startup.
type Deps struct {
	Store      store.Gateway
	Codec      *ModerationCodec
	Mailer     Mailer
	Moderation ModerationConfig
	Cache      *utils.ViewCache[*ThreadView]
	Metrics    *Metrics
	Logger     *zap.Logger

	// Sanitize cleans comment text before it is stored. Defaults to
	// utils.SanitizeComment.
	Sanitize func(string) string
	Now      func() time.Time
}

// Engine implements the comment tree, vote ledger and moderation
// operations on top of a store.Gateway. It is safe for concurrent use.
type Engine struct {
	store    store.Gateway
	codec    *ModerationCodec
	mailer   Mailer
	mod      ModerationConfig
	cache    *utils.ViewCache[*ThreadView]
	metrics  *Metrics
	log      *zap.Logger
	sanitize func(string) string
	now      func() time.Time
}

func NewEngine(d Deps) (*Engine, error) {
	if d.Store == nil {
		return nil, errors.New("engine: store is required")
	}
	if d.Codec == nil {
		return nil, errors.New("engine: moderation codec is required")
	}
	e := &Engine{
		store:    d.Store,
		codec:    d.Codec,
		mailer:   d.Mailer,
		mod:      d.Moderation,
		cache:    d.Cache,
		metrics:  d.Metrics,
		log:      d.Logger,
		sanitize: d.Sanitize,
		now:      d.Now,
	}
	if e.log == nil {
		e.log = zap.NewNop()
	}
	if e.sanitize == nil {
		e.sanitize = utils.SanitizeComment
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.mod.MaxAge <= 0 {
		e.mod.MaxAge = 7 * 24 * time.Hour
	}
	if e.mod.Template == nil {
		e.mod.Template = defaultReportTemplate
	}
	e.mod.HostedAddress = strings.TrimRight(e.mod.HostedAddress, "/")
	return e, nil
}

func (e *Engine) timestamp() time.Time {
	return e.now().UTC()
}

// cleanText sanitizes text and checks its length.
func (e *Engine) cleanText(text string) (string, error) {
	text = e.sanitize(text)
	if strings.TrimSpace(text) == "" {
		return "", invalidArgument("text is empty")
	}
	if n := utf8.RuneCountInString(text); n > maxTextLength {
		return "", invalidArgument("text is %d characters long, the limit is %d", n, maxTextLength)
	}
	return text, nil
}

func checkName(kind, name string) error {
	if name == "" {
		return invalidArgument("%s name is empty", kind)
	}
	if utf8.RuneCountInString(name) > maxNameLength {
		return invalidArgument("%s name is longer than %d characters", kind, maxNameLength)
	}
	return nil
}

// invalidate drops the cached view of thread. It runs after commit.
func (e *Engine) invalidate(thread string) {
	e.cache.Delete(thread)
}

// Ping checks that the store is reachable.
func (e *Engine) Ping(ctx context.Context) error {
	return e.store.Ping(ctx)
}
