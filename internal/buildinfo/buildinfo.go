// Package buildinfo carries release metadata stamped into relq binaries with
// -ldflags "-X github.com/aidanlsb/relq/internal/buildinfo.Version=...".
// Development builds leave every value empty.
package buildinfo

var (
	Version = ""
	Commit  = ""
	Date    = ""
)
