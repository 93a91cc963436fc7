package quorum

import "fmt"

// Release numbers of the quorum engine and its command line tool.
const (
	Maj    = 0
	Min    = 1
	Fix    = 0
	Suffix = "-dev"
)

var version = fmt.Sprintf("v%d.%d.%d%s", Maj, Min, Fix, Suffix)

// GitCommit is the revision the quorum binary was built from. The command
// copies it from its own gitHash, set with -ldflags "-X main.gitHash=...".
var GitCommit = ""

// Version is what `quorum version` prints: the release number followed by
// the build revision when known.
func Version() string {
	if GitCommit == "" {
		return version
	}
	return version + " " + GitCommit
}
