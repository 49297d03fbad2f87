package content

import (
	"io/fs"
	"time"
)

// Source records where a snapshot was loaded from.
type Source string

const (
	SourceUnknown  Source = "unknown"
	SourceEmbedded Source = "embedded"
	SourceDir      Source = "dir"
)

// Meta describes a site build. SHA256 covers every file's path and bytes,
// so two loads of the same tree agree on it.
type Meta struct {
	Version string    `json:"version,omitempty"`
	SHA256  string    `json:"sha256,omitempty"`
	Files   int       `json:"files"`
	BuiltAt time.Time `json:"built_at,omitempty"`
	Source  Source    `json:"source,omitempty"`
}

// Snapshot is one immutable site build plus its metadata.
type Snapshot struct {
	FS       fs.FS
	Meta     Meta
	LoadedAt time.Time
}
