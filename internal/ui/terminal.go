package ui

import (
	"os"

	"github.com/mattn/go-isatty"
)

// IsTerminal reports whether f is attached to a terminal (including Cygwin
// and MSYS ptys).
func IsTerminal(f *os.File) bool {
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// UseJSON resolves an output format setting ("auto", "table", "json") for
// the given stream. "auto" prints tables to terminals and JSON elsewhere.
func UseJSON(format string, out *os.File) bool {
	switch format {
	case "json":
		return true
	case "table":
		return false
	default:
		return !IsTerminal(out)
	}
}
