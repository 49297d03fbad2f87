package content

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/devint-cl/devint-web/internal/xerrors"
)

// VersionFile is an optional file at the site root whose first line is
// the build version, written by the site build.
const VersionFile = "version.txt"

// FromFS builds a snapshot over fsys, hashing every regular file.
func FromFS(fsys fs.FS, source Source) (*Snapshot, error) {
	if fsys == nil {
		return nil, xerrors.New("content: nil filesystem")
	}
	sum, files, err := Digest(fsys)
	if err != nil {
		return nil, err
	}
	meta := Meta{
		Version: readVersion(fsys),
		SHA256:  sum,
		Files:   files,
		Source:  source,
	}
	if fi, err := fs.Stat(fsys, "index.html"); err == nil {
		meta.BuiltAt = fi.ModTime().UTC()
	}
	return &Snapshot{FS: fsys, Meta: meta, LoadedAt: time.Now().UTC()}, nil
}

// LoadDir snapshots a site build directory.
func LoadDir(dir string) (*Snapshot, error) {
	fi, err := os.Stat(dir)
	if err != nil {
		return nil, xerrors.Wrapf(err, "content: stat %s", dir)
	}
	if !fi.IsDir() {
		return nil, xerrors.Newf("content: %s is not a directory", dir)
	}
	snap, err := FromFS(os.DirFS(dir), SourceDir)
	if err != nil {
		return nil, xerrors.Wrapf(err, "content: load %s", dir)
	}
	return snap, nil
}

// Digest returns a sha256 over every regular file's path and contents in
// lexical walk order, and the number of files.
func Digest(fsys fs.FS) (string, int, error) {
	h := sha256.New()
	files := 0
	err := fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		f, err := fsys.Open(p)
		if err != nil {
			return err
		}
		defer f.Close()

		io.WriteString(h, p)
		h.Write([]byte{0})
		if _, err := io.Copy(h, f); err != nil {
			return err
		}
		h.Write([]byte{0})
		files++
		return nil
	})
	if err != nil {
		return "", 0, xerrors.Wrap(err, "content: digest")
	}
	return hex.EncodeToString(h.Sum(nil)), files, nil
}

func readVersion(fsys fs.FS) string {
	b, err := fs.ReadFile(fsys, VersionFile)
	if err != nil {
		return ""
	}
	line, _, _ := strings.Cut(string(b), "\n")
	return strings.TrimSpace(line)
}
