// Package version reports build metadata. The variables are set with
// -ldflags "-X github.com/devint-cl/devint-web/internal/version.Version=..."
// and fall back to the vcs stamp from debug.ReadBuildInfo.
package version

import "runtime/debug"

var (
	Version    = "dev"
	Commit     = "none"
	CommitDate string
	BuildDate  string
	BuildID    string
	GoVersion  string
	VCSDirty   *bool
)

type Info struct {
	Version    string `json:"version"`
	Commit     string `json:"commit"`
	CommitDate string `json:"commit_date"`
	BuildDate  string `json:"build_date"`
	BuildID    string `json:"build_id"`
	GoVersion  string `json:"go_version"`
	VCSDirty   *bool  `json:"vcs_dirty,omitempty"`
}

// buildInfo is replaced in tests.
var buildInfo = debug.ReadBuildInfo

func Get() Info {
	out := Info{
		Version:    Version,
		Commit:     Commit,
		CommitDate: CommitDate,
		BuildDate:  BuildDate,
		BuildID:    BuildID,
		GoVersion:  GoVersion,
		VCSDirty:   VCSDirty,
	}

	bi, ok := buildInfo()
	if !ok {
		return out
	}
	out.GoVersion = bi.GoVersion
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			if out.Commit == "none" && s.Value != "" {
				out.Commit = s.Value
			}
		case "vcs.time":
			if out.BuildDate == "" && s.Value != "" {
				out.BuildDate = s.Value
			}
			if out.CommitDate == "" {
				out.CommitDate = s.Value
			}
		case "vcs.modified":
			// ldflags win over the vcs stamp
			if out.VCSDirty != nil {
				continue
			}
			switch s.Value {
			case "true":
				t := true
				out.VCSDirty = &t
			case "false":
				f := false
				out.VCSDirty = &f
			}
		}
	}
	return out
}

// Short is "version (commit[:7])", with a "-dirty" suffix when the tree
// was modified at build time.
func (i Info) Short() string {
	c := i.Commit
	if len(c) > 7 {
		c = c[:7]
	}
	s := i.Version + " (" + c + ")"
	if i.VCSDirty != nil && *i.VCSDirty {
		s += "-dirty"
	}
	return s
}
