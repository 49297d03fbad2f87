package content

import (
	"io/fs"

	"github.com/devint-cl/devint-web/internal/xerrors"
)

// ValidationOptions controls which checks ValidateSnapshot performs.
// The zero value only requires a non-empty index.html.
type ValidationOptions struct {
	// MinFiles rejects builds with fewer files, 0 disables the check
	MinFiles int

	// Require lists paths that must exist, e.g. "404.html"
	Require []string
}

// DefaultValidationOptions are applied to directory reloads, where a half
// written build is the usual failure.
func DefaultValidationOptions() ValidationOptions {
	return ValidationOptions{MinFiles: 2, Require: []string{"404.html"}}
}

// ValidateSnapshot rejects snapshots that would serve a broken site.
func ValidateSnapshot(snap *Snapshot, opts ValidationOptions) error {
	if snap == nil {
		return xerrors.New("validate: snapshot is nil")
	}
	if snap.FS == nil {
		return xerrors.New("validate: snapshot has nil filesystem")
	}

	fi, err := fs.Stat(snap.FS, "index.html")
	if err != nil {
		return xerrors.Wrap(err, "validate: index.html not found")
	}
	if fi.Size() == 0 {
		return xerrors.New("validate: index.html is empty")
	}

	for _, p := range opts.Require {
		if _, err := fs.Stat(snap.FS, p); err != nil {
			return xerrors.Wrapf(err, "validate: required file %s", p)
		}
	}

	if opts.MinFiles > 0 && snap.Meta.Files < opts.MinFiles {
		return xerrors.Newf("validate: site has %d files, minimum is %d", snap.Meta.Files, opts.MinFiles)
	}
	return nil
}
