// Package compileinfo reports how a readquant binary was built, from the
// module and VCS metadata the Go toolchain embeds.
package compileinfo

import (
	"fmt"
	"os"
	"runtime/debug"

	"go.uber.org/zap"
)

type CompileInfo struct {
	Package    string
	Version    string
	GoVersion  string
	Commit     string
	CommitTime string
	Modified   bool
}

func (c CompileInfo) String() string {
	mod := ""
	if c.Modified {
		mod = " Files in the repo were modified after that commit."
	}

	version := ""
	if c.Version != "" && c.Version != "(devel)" {
		version = " " + c.Version
	}

	return fmt.Sprintf("This %s%s binary was built with %s at commit %v at time %v.%s", c.Package, version, c.GoVersion, c.Commit, c.CommitTime, mod)
}

// Fields describes the build as structured log fields.
func (c CompileInfo) Fields() []zap.Field {
	return []zap.Field{
		zap.String("package", c.Package),
		zap.String("version", c.Version),
		zap.String("go_version", c.GoVersion),
		zap.String("commit", c.Commit),
		zap.String("commit_time", c.CommitTime),
		zap.Bool("modified", c.Modified),
	}
}

func Get() CompileInfo {
	z, ok := debug.ReadBuildInfo()
	if !ok {
		return CompileInfo{}
	}

	return fromBuildInfo(z)
}

func fromBuildInfo(z *debug.BuildInfo) CompileInfo {
	out := CompileInfo{
		GoVersion: z.GoVersion,
		Package:   z.Path,
		Version:   z.Main.Version,
	}
	for _, s := range z.Settings {
		switch s.Key {
		case "vcs.revision":
			out.Commit = s.Value
		case "vcs.time":
			out.CommitTime = s.Value
		case "vcs.modified":
			out.Modified = s.Value == "true"
		}
	}

	return out
}

func PrintToStdErr() {
	fmt.Fprintf(os.Stderr, "%s\n", Get())
}
