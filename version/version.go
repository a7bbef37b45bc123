package version

import "runtime/debug"

// Version is the release tag, injected at build time with
//
//	go build -ldflags "-X github.com/mkarjala/kaiku/version.Version=$(git describe --dirty)"
//
// Builds without the flag report the VCS revision instead.
var Version string

var Hash = func() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	var revision string
	var modified bool
	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			revision = setting.Value
		case "vcs.modified":
			modified = setting.Value == "true"
		}
	}
	if len(revision) < 7 {
		return revision
	}
	if modified {
		return revision[:7] + "-dirty"
	}
	return revision[:7]
}()

var VersionOrHash = func() string {
	if Version != "" {
		return Version
	}
	return Hash
}()
