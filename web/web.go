// Package web embeds the HTML templates served to moderators.
package web

import "embed"

//go:embed templates
var Templates embed.FS
