package roofline

import "github.com/blang/semver"

// Version is the release of the engine and of the report format.
var Version = semver.MustParse("0.3.0")
