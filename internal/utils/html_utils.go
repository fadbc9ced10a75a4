package utils

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// HTMLToText extracts a readable plain-text version of an HTML document,
// used as the text/plain part of outgoing mail. Links keep their target in
// angle brackets.
func HTMLToText(htmlStr string) string {
	if htmlStr == "" {
		return ""
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlStr))
	if err != nil {
		return htmlStr
	}
	doc.Find("style, script, head").Remove()

	doc.Find("a").Each(func(i int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		if !ok || href == "" {
			return
		}
		label := strings.TrimSpace(s.Text())
		if label == "" || label == href {
			s.SetText(href)
			return
		}
		s.SetText(label + " <" + href + ">")
	})
	doc.Find("br").ReplaceWithHtml("\n")
	doc.Find("p, div, tr, li, h1, h2, h3, pre, blockquote").Each(func(i int, s *goquery.Selection) {
		s.AppendHtml("\n")
	})

	var lines []string
	for _, line := range strings.Split(doc.Text(), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}
