package cli

import (
	"runtime/debug"
	"testing"

	"github.com/aidanlsb/relq/internal/buildinfo"
)

func TestVersionFallsBackToLdflags(t *testing.T) {
	prevRead, prevVersion, prevCommit := readBuildInfo, buildinfo.Version, buildinfo.Commit
	t.Cleanup(func() {
		readBuildInfo, buildinfo.Version, buildinfo.Commit = prevRead, prevVersion, prevCommit
	})

	readBuildInfo = func() (*debug.BuildInfo, bool) { return nil, false }
	buildinfo.Version = "v0.3.0"
	buildinfo.Commit = "abc123"

	info := currentVersionInfo()
	if info.Version != "v0.3.0" || info.Commit != "abc123" || info.ModulePath != modulePath {
		t.Errorf("unexpected info %+v", info)
	}
}

func TestVersionPrefersModuleBuildInfo(t *testing.T) {
	prevRead := readBuildInfo
	t.Cleanup(func() { readBuildInfo = prevRead })

	readBuildInfo = func() (*debug.BuildInfo, bool) {
		return &debug.BuildInfo{
			Main: debug.Module{Path: modulePath, Version: "(devel)"},
			Settings: []debug.BuildSetting{
				{Key: "vcs.revision", Value: "deadbeef"},
				{Key: "vcs.modified", Value: "true"},
			},
		}, true
	}
	info := currentVersionInfo()
	if info.Version != "devel" && info.Version != buildinfo.Version {
		t.Errorf("version = %q", info.Version)
	}
	if info.Commit != "deadbeef" || !info.Modified {
		t.Errorf("unexpected info %+v", info)
	}
}
