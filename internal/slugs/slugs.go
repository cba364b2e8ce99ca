// Package slugs turns free text such as post titles into URL slugs.
package slugs

import (
	"strings"

	goslug "github.com/gosimple/slug"
)

// Make slugifies s. Text gosimple/slug reduces to nothing (only symbols,
// for example) falls back to lower-casing with spaces turned into dashes.
func Make(s string) string {
	s = strings.TrimSpace(s)
	slugged := goslug.Make(s)
	if slugged == "" {
		slugged = strings.ToLower(strings.ReplaceAll(s, " ", "-"))
	}
	return slugged
}
