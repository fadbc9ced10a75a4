package utils

import (
	"bytes"
	"html/template"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

var (
	mdParser = goldmark.New(
		goldmark.WithExtensions(extension.Strikethrough, extension.Linkify),
		goldmark.WithRendererOptions(
			html.WithHardWraps(),
			html.WithXHTML(),
		),
	)
	commentPolicy = newCommentPolicy()
	renderPolicy  = bluemonday.UGCPolicy()
)

// newCommentPolicy allows the small inline set a comment may carry and
// escapes everything else.
func newCommentPolicy() *bluemonday.Policy {
	p := bluemonday.NewPolicy()
	p.AllowElements("a", "abbr", "acronym", "b", "blockquote", "code", "em", "i", "li", "ol", "strong", "ul")
	p.AllowAttrs("href", "title").OnElements("a")
	p.AllowAttrs("title").OnElements("abbr", "acronym")
	p.AllowStandardURLs()
	p.RequireNoReferrerOnLinks(true)
	return p
}

func init() {
	// Force links to open in new tab
	renderPolicy.AddTargetBlankToFullyQualifiedLinks(true)
	renderPolicy.RequireNoReferrerOnLinks(true)
}

// SanitizeComment strips markup outside the comment allow-list.
func SanitizeComment(text string) string {
	return commentPolicy.Sanitize(text)
}

// RenderMarkdown converts comment text to sanitized HTML for the moderator
// e-mail.
func RenderMarkdown(source string) template.HTML {
	var buf bytes.Buffer
	if err := mdParser.Convert([]byte(source), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(source)) // Fallback
	}
	return template.HTML(renderPolicy.SanitizeBytes(buf.Bytes()))
}
