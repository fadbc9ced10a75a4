package services_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"murmur/internal/services"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/require"
)

const linkPrefix = hostedAddress + "/delete_reported/"

// reportToken reports id and returns the token from the mailed link.
func (f *fixture) reportToken(t *testing.T, id uint) string {
	t.Helper()
	var sent services.Message
	f.mailer.EXPECT().Send(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, msg services.Message) error {
			sent = msg
			return nil
		})

	_, err := f.engine.Report(context.Background(), id)
	require.NoError(t, err)

	i := strings.Index(sent.TextBody, linkPrefix)
	require.GreaterOrEqual(t, i, 0, sent.TextBody)
	token := sent.TextBody[i+len(linkPrefix):]
	if j := strings.IndexAny(token, " \n>"); j >= 0 {
		token = token[:j]
	}
	return token
}

func TestReport_MailsModerators(t *testing.T) {
	f := newFixture(t)
	c1 := f.post(t, "general", "alice", "some *rude* words")

	var sent services.Message
	f.mailer.EXPECT().Send(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, msg services.Message) error {
			sent = msg
			return nil
		})

	out, err := f.engine.Report(context.Background(), c1)
	require.NoError(t, err)
	require.Equal(t, c1, out.CommentID)
	require.Equal(t, 1, out.Recipients)

	require.Equal(t, []string{"mod@example.com"}, sent.To)
	require.Equal(t, "murmur", sent.From)
	require.Equal(t, "Request to delete comment: "+itoa(c1), sent.Subject)
	require.Contains(t, sent.HTMLBody, `href="`+linkPrefix)
	require.Contains(t, sent.HTMLBody, "<em>rude</em>")
	require.Contains(t, sent.HTMLBody, "alice")
	require.Contains(t, sent.HTMLBody, "general")
	require.Contains(t, sent.TextBody, linkPrefix)
	require.NotContains(t, sent.TextBody, "<table>")
}

func TestReport_UnknownComment(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.Report(context.Background(), 404)
	require.ErrorIs(t, err, services.ErrNotFound)
}

func TestReport_MailFailure(t *testing.T) {
	f := newFixture(t)
	c1 := f.post(t, "general", "alice", "text")

	f.mailer.EXPECT().Send(gomock.Any(), gomock.Any()).Return(errors.New("connection refused"))
	_, err := f.engine.Report(context.Background(), c1)
	require.ErrorIs(t, err, services.ErrNotificationFailed)

	// Nothing was changed by the failed report.
	view, err := f.engine.GetThread(context.Background(), "general")
	require.NoError(t, err)
	require.Equal(t, 1, view.Count)
}

func TestReport_NoModerators(t *testing.T) {
	f := newFixture(t)
	engine, err := services.NewEngine(services.Deps{
		Store: f.store,
		Codec: f.codec,
	})
	require.NoError(t, err)
	c1 := f.post(t, "general", "alice", "text")

	_, err = engine.Report(context.Background(), c1)
	require.ErrorIs(t, err, services.ErrNotificationFailed)
}

func TestDeleteReported_DeletesLeaf(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c1 := f.post(t, "general", "alice", "text")
	token := f.reportToken(t, c1)

	out, err := f.engine.DeleteReported(ctx, token)
	require.NoError(t, err)
	require.Equal(t, c1, out.CommentID)
	require.Equal(t, "general", out.Thread)
	require.False(t, out.Hidden)
	require.Equal(t, 1, out.Removed)

	view, err := f.engine.GetThread(ctx, "general")
	require.NoError(t, err)
	require.Zero(t, view.Count)

	// The comment is gone; the same link now reports it missing.
	_, err = f.engine.DeleteReported(ctx, token)
	require.ErrorIs(t, err, services.ErrNotFound)
}

func TestDeleteReported_HidesCommentWithReplies(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c1 := f.post(t, "general", "alice", "text")
	c2 := f.reply(t, c1, "bob", "reply")
	token := f.reportToken(t, c1)

	out, err := f.engine.DeleteReported(ctx, token)
	require.NoError(t, err)
	require.True(t, out.Hidden)
	require.Zero(t, out.Removed)

	view, err := f.engine.GetThread(ctx, "general")
	require.NoError(t, err)
	require.True(t, view.Find(c1).Hidden)
	require.Equal(t, c2, view.Find(c1).Replies[0].ID)
}

func TestDeleteReported_Expired(t *testing.T) {
	f := newFixture(t)
	c1 := f.post(t, "general", "alice", "text")
	token := f.reportToken(t, c1)

	f.clock.Advance(maxAge + time.Minute)
	_, err := f.engine.DeleteReported(context.Background(), token)
	require.ErrorIs(t, err, services.ErrTokenExpired)

	view, err := f.engine.GetThread(context.Background(), "general")
	require.NoError(t, err)
	require.Equal(t, 1, view.Count)
}

func TestDeleteReported_BadSignature(t *testing.T) {
	f := newFixture(t)
	c1 := f.post(t, "general", "alice", "text")
	token := f.reportToken(t, c1)

	// Change the first character of the signature segment.
	i := strings.LastIndex(token, ".") + 1
	c := byte('A')
	if token[i] == 'A' {
		c = 'B'
	}
	tampered := token[:i] + string(c) + token[i+1:]

	_, err := f.engine.DeleteReported(context.Background(), tampered)
	require.ErrorIs(t, err, services.ErrTokenInvalid)
}

func TestDeleteReported_ThreadMismatch(t *testing.T) {
	f := newFixture(t)
	c1 := f.post(t, "general", "alice", "text")

	token, err := f.codec.Encode(c1, "another-thread")
	require.NoError(t, err)
	_, err = f.engine.DeleteReported(context.Background(), token)
	require.ErrorIs(t, err, services.ErrThreadMismatch)

	view, err := f.engine.GetThread(context.Background(), "general")
	require.NoError(t, err)
	require.Equal(t, 1, view.Count)
}

func TestLoadReportTemplate(t *testing.T) {
	tmpl, err := services.LoadReportTemplate("")
	require.NoError(t, err)
	require.NotNil(t, tmpl)

	dir := t.TempDir()
	tmpl, err = services.LoadReportTemplate(dir)
	require.NoError(t, err)
	require.NotNil(t, tmpl)

	custom := `<p>Delete {{.ID}} by {{.Author}}: <a href="{{.DeleteLink}}">here</a> {{datetime .Created}}</p>`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "report.html"), []byte(custom), 0o600))
	tmpl, err = services.LoadReportTemplate(dir)
	require.NoError(t, err)

	f := newFixture(t)
	engine, err := services.NewEngine(services.Deps{
		Store:  f.store,
		Codec:  f.codec,
		Mailer: f.mailer,
		Moderation: services.ModerationConfig{
			MaxAge:        maxAge,
			AdminEmails:   []string{"a@example.com", "b@example.com"},
			HostedAddress: hostedAddress,
			Template:      tmpl,
		},
	})
	require.NoError(t, err)
	c1 := f.post(t, "general", "alice", "text")

	var sent services.Message
	f.mailer.EXPECT().Send(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, msg services.Message) error {
			sent = msg
			return nil
		})
	out, err := engine.Report(context.Background(), c1)
	require.NoError(t, err)
	require.Equal(t, 2, out.Recipients)
	require.True(t, strings.HasPrefix(sent.HTMLBody, "<p>Delete "+itoa(c1)+" by alice"))
	require.Contains(t, sent.TextBody, "here <"+linkPrefix)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "report.html"), []byte("{{.Broken"), 0o600))
	_, err = services.LoadReportTemplate(dir)
	require.Error(t, err)
}
