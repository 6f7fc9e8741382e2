// Package prompts holds the text templates sent to the suggestion provider.
package prompts

import "embed"

//go:embed *.tmpl
var FS embed.FS
