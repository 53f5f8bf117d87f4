// Package version reports the build version of the capture daemon, set at
// link time via -X flags in the release build.
package version

import (
	"bytes"
	"fmt"
	"runtime"
	"strings"

	ver "github.com/hashicorp/go-version"
	"golang.org/x/sys/unix"
)

var (
	// Set to the content of the VERSION file at link-time with -X.
	rawReleaseVersion = "0.0.0"

	releaseVersion = ver.Must(ver.NewSemver(strings.TrimSuffix(rawReleaseVersion, "\n")))

	// Set at link-time with -X.
	gitVersion = "unknown"
)

func ReleaseVersion() *ver.Version {
	return releaseVersion
}

// GitVersion is the git SHA this binary was built from.
func GitVersion() string {
	return gitVersion
}

// DisplayString is the one-line version banner printed by `flowlensd
// --version`.
func DisplayString() string {
	var utsname unix.Utsname
	_ = unix.Uname(&utsname)

	archMsg := runtime.GOARCH
	machineArch := string(bytes.Trim(utsname.Machine[:], "\x00"))
	if runtime.GOARCH != machineArch {
		archMsg = fmt.Sprintf("built for %s, running on %s", runtime.GOARCH, machineArch)
	}

	return fmt.Sprintf("%s (%s, %s)", releaseVersion.String(), gitVersion, archMsg)
}
