package meta

import (
	"fmt"
	"runtime"
)

// Set at build time with the linker's -X flag, e.g.
//
//	go build -ldflags "-X github.com/luma/agi/internal/meta.Version=1.2.0"
var (
	Version string

	// Build is the git sha the binary was built from
	Build string

	Branch string

	// BuildTimeUTC is formatted as year/month/day hour:min:sec
	BuildTimeUTC string

	// GoTag lists the build tags, see https://golang.org/pkg/go/build/#hdr-Build_Constraints
	GoTag string
)

// Info describes how and from what an agi binary was built.
type Info struct {
	Version   string
	Build     string
	Branch    string
	BuildTime string
	Platform  string
	GoVersion string
	GoTag     string
}

func GetInfo() Info {
	return Info{
		Version:   Version,
		Build:     Build,
		Branch:    Branch,
		BuildTime: BuildTimeUTC,
		GoTag:     GoTag,
		GoVersion: runtime.Version(),
		Platform:  fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
	}
}

func (i Info) String() string {
	version := i.Version
	if version == "" {
		version = "dev"
	}

	s := fmt.Sprintf("agi %s %s %s", version, i.GoVersion, i.Platform)

	if i.Build != "" {
		s += fmt.Sprintf(" (%s@%s, built %s)", i.Branch, i.Build, i.BuildTime)
	}

	if i.GoTag != "" {
		s += " tags=" + i.GoTag
	}

	return s
}
