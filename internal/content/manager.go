package content

import (
	"sync/atomic"
	"time"

	"github.com/devint-cl/devint-web/internal/xerrors"
)

type Manager struct {
	active atomic.Pointer[Snapshot]
}

func NewManager() *Manager { return &Manager{} }

// Set stores a copy of s as the active snapshot, stamping LoadedAt if unset.
func (m *Manager) Set(s Snapshot) {
	cp := new(Snapshot)
	*cp = s
	if cp.LoadedAt.IsZero() {
		cp.LoadedAt = time.Now().UTC()
	}
	m.active.Store(cp)
}

// Get returns the active snapshot and whether it is usable.
func (m *Manager) Get() (*Snapshot, bool) {
	s := m.active.Load()
	return s, s != nil && s.FS != nil
}

// SiteVersion implements httpmw.SiteInfo.
func (m *Manager) SiteVersion() string {
	if s := m.active.Load(); s != nil {
		return s.Meta.Version
	}
	return ""
}

// SiteHash implements httpmw.SiteInfo.
func (m *Manager) SiteHash() string {
	if s := m.active.Load(); s != nil {
		return s.Meta.SHA256
	}
	return ""
}

func (m *Manager) Source() Source {
	if s := m.active.Load(); s != nil {
		return s.Meta.Source
	}
	return SourceUnknown
}

func (m *Manager) LoadedAt() time.Time {
	if s := m.active.Load(); s != nil {
		return s.LoadedAt
	}
	return time.Time{}
}

// ReadyErr is a readiness probe: it fails until a snapshot is loaded.
func (m *Manager) ReadyErr() error {
	if _, ok := m.Get(); !ok {
		return xerrors.New("content: no active snapshot")
	}
	return nil
}
