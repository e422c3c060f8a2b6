package application

import (
	"github.com/blang/semver/v4"
)

// rawVersion is the release version of this module. Overridable at link time:
//
//	go build -ldflags "-X .../application.rawVersion=1.2.3"
var rawVersion = "0.1.0"

// Version returns the parsed module version.
func Version() semver.Version {
	return semver.MustParse(rawVersion)
}

// VersionString returns the module version as a string.
func VersionString() string {
	return Version().String()
}
