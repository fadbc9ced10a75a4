package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"time"

	"murmur/internal/models"
	"murmur/internal/store"
	"murmur/internal/utils"

	"go.uber.org/zap"
)

// ReportOutcome describes a sent report. The delete link itself only goes
// to moderators.
type ReportOutcome struct {
	CommentID  uint `json:"comment_id"`
	Recipients int  `json:"recipients"`
}

// DeleteOutcome describes a delete made through a moderation link.
type DeleteOutcome struct {
	CommentID uint   `json:"comment_id"`
	Thread    string `json:"thread"`
	Hidden    bool   `json:"hidden"`
	Removed   int    `json:"removed"`
}

type reportData struct {
	DeleteLink string
	ID         uint
	Author     string
	Thread     string
	Created    time.Time
	Modified   time.Time
	Text       string
	TextHTML   template.HTML
}

const reportTemplateName = "report.html"

var reportFuncs = template.FuncMap{
	"datetime": func(t time.Time) string { return t.UTC().Format(time.RFC3339) },
}

var defaultReportTemplate = template.Must(template.New(reportTemplateName).Funcs(reportFuncs).Parse(`<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>Request to delete comment: {{.ID}}</title>
</head>
<body>
    <p>Someone reported a comment as abusive.</p>
    <p>To delete it open this link:<br><a href="{{.DeleteLink}}">{{.DeleteLink}}</a></p>

    <p>Comment:</p>
    <table>
        <tr><td>ID:</td><td>{{.ID}}</td></tr>
        <tr><td>Author:</td><td>{{.Author}}</td></tr>
        <tr><td>Created:</td><td>{{datetime .Created}}</td></tr>
        <tr><td>Modified:</td><td>{{datetime .Modified}}</td></tr>
        <tr><td>Thread:</td><td>{{.Thread}}</td></tr>
    </table>
    <blockquote>{{.TextHTML}}</blockquote>
</body>
</html>`))

// LoadReportTemplate parses dir/report.html. An empty dir, or a dir without
// that file, gives the built-in template.
func LoadReportTemplate(dir string) (*template.Template, error) {
	if dir == "" {
		return defaultReportTemplate, nil
	}
	path := filepath.Join(dir, reportTemplateName)
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return defaultReportTemplate, nil
	}
	t, err := template.New(reportTemplateName).Funcs(reportFuncs).ParseFiles(path)
	if err != nil {
		return nil, fmt.Errorf("failed to parse template %s: %w", path, err)
	}
	return t, nil
}

// Report mails the moderators a signed link that deletes the comment.
// Nothing is stored; if delivery fails the error wraps
// ErrNotificationFailed and the report can simply be repeated.
func (e *Engine) Report(ctx context.Context, commentID uint) (*ReportOutcome, error) {
	var comment *models.Comment
	err := e.store.Tx(ctx, func(tx store.Tx) error {
		c, err := tx.Comment(commentID, store.LockNone)
		if err != nil {
			return commentNotFound(commentID, err)
		}
		comment = c
		return nil
	})
	if err != nil {
		return nil, err
	}

	token, err := e.codec.Encode(comment.ID, comment.Thread.Name)
	if err != nil {
		return nil, fmt.Errorf("mint moderation token: %w", err)
	}
	msg, err := e.reportMessage(comment, e.mod.HostedAddress+"/delete_reported/"+token)
	if err != nil {
		return nil, err
	}

	if err := e.notify(ctx, msg); err != nil {
		e.metrics.report("failed")
		e.log.Warn("Report notification failed", zap.Uint("comment_id", commentID), zap.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrNotificationFailed, err)
	}
	e.metrics.report("sent")
	e.log.Info("Comment reported", zap.Uint("comment_id", commentID), zap.Int("recipients", len(msg.To)))
	return &ReportOutcome{CommentID: commentID, Recipients: len(msg.To)}, nil
}

func (e *Engine) notify(ctx context.Context, msg Message) error {
	if e.mailer == nil {
		return errors.New("no mailer configured")
	}
	if len(msg.To) == 0 {
		return errors.New("no moderator addresses configured")
	}
	return e.mailer.Send(ctx, msg)
}

func (e *Engine) reportMessage(c *models.Comment, link string) (Message, error) {
	data := reportData{
		DeleteLink: link,
		ID:         c.ID,
		Author:     c.Author.Name,
		Thread:     c.Thread.Name,
		Created:    c.Created,
		Modified:   c.Modified,
		Text:       c.Text,
		TextHTML:   utils.RenderMarkdown(c.Text),
	}
	var buf bytes.Buffer
	if err := e.mod.Template.Execute(&buf, data); err != nil {
		return Message{}, fmt.Errorf("failed to execute template %s: %w", reportTemplateName, err)
	}
	html := buf.String()
	return Message{
		To:       append([]string(nil), e.mod.AdminEmails...),
		From:     e.mod.SenderName,
		Subject:  fmt.Sprintf("Request to delete comment: %d", c.ID),
		HTMLBody: html,
		TextBody: utils.HTMLToText(html),
	}, nil
}

// DeleteReported deletes the comment named by a moderation token, with the
// same hide-or-delete rules as Delete but without an author check.
func (e *Engine) DeleteReported(ctx context.Context, token string) (*DeleteOutcome, error) {
	commentID, threadName, err := e.codec.Decode(token, e.mod.MaxAge)
	if err != nil {
		return nil, err
	}

	var r removal
	err = e.store.Tx(ctx, func(tx store.Tx) error {
		c, err := tx.Comment(commentID, store.LockUpdate)
		if err != nil {
			return commentNotFound(commentID, err)
		}
		if c.Thread.Name != threadName {
			return ErrThreadMismatch
		}
		r, err = e.removeComment(tx, c)
		return err
	})
	if err != nil {
		return nil, err
	}

	e.invalidate(threadName)
	e.metrics.removed(r)
	e.log.Info("Reported comment removed", zap.Uint("comment_id", commentID), zap.String("thread", threadName),
		zap.Int("hidden", r.hidden), zap.Int("deleted", r.deleted))
	return &DeleteOutcome{
		CommentID: commentID,
		Thread:    threadName,
		Hidden:    r.deleted == 0,
		Removed:   r.deleted,
	}, nil
}
