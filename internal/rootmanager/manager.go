package rootmanager

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"clipper/internal/database"
	"clipper/internal/logging"
)

// ErrRootNotFound is returned by Select when name is not in the configured
// root list.
var ErrRootNotFound = errors.New("rootmanager: root not found")

// ErrUnhealthy is returned by every call once a Select rollback itself has
// failed — the manager has no known-good store and must not serve further
// requests until restarted.
var ErrUnhealthy = errors.New("rootmanager: engine unhealthy after failed root switch and rollback")

// catalogSubdir and audiosSubdir are the fixed per-root layout maintained
// under the active root.
const (
	catalogSubdir = ".clipper"
	audiosSubdir  = "Audios"
	catalogDBName = "clipper.db"
)

// Manager owns the active root, the configured root list, and the catalog
// Database connection bound to whichever root is active. Select is the one
// global barrier that serializes switching the active root.
type Manager struct {
	mu sync.RWMutex

	rootsPath string
	roots     []Root
	remember  bool

	current Root
	db      *database.Database
	dbOpts  *database.Options

	unhealthy bool

	onInvalidateThumbnails func()
	onResetFaceModel       func()
	onThumbnailStorePath   func(path string) error
}

// New loads roots.json at rootsPath (creating none if absent) and opens the
// catalog database for the default root, or the first configured root if
// none is marked default. Returns a Manager with no active root if none are
// configured yet — callers must Select one before serving catalog traffic.
func New(ctx context.Context, rootsPath string, dbOpts *database.Options) (*Manager, error) {
	f, err := loadRootsFile(rootsPath)
	if err != nil {
		return nil, err
	}

	m := &Manager{rootsPath: rootsPath, roots: f.Roots, remember: f.RememberLastRoot, dbOpts: dbOpts}

	if len(f.Roots) == 0 {
		return m, nil
	}

	initial := f.Roots[0]
	for _, r := range f.Roots {
		if r.Default {
			initial = r
			break
		}
	}
	if err := m.openRoot(ctx, initial); err != nil {
		return nil, fmt.Errorf("open initial root %q: %w", initial.Name, err)
	}
	return m, nil
}

// OnInvalidateThumbnails registers the hook run while switching roots, right
// after the old catalog database is disposed, to invalidate the thumbnail
// cache handle bound to the outgoing root.
func (m *Manager) OnInvalidateThumbnails(fn func()) { m.onInvalidateThumbnails = fn }

// OnResetFaceModel registers the hook run while switching roots to reset any
// cached face-recognition model state tied to the outgoing root.
func (m *Manager) OnResetFaceModel(fn func()) { m.onResetFaceModel = fn }

// OnReinitThumbnailStore registers the hook run after the new root's catalog
// database opens successfully, to re-initialize the thumbnail cache at
// <new_root>/.clipper/thumbnails.db. The hook receives the new thumbnail
// store path.
func (m *Manager) OnReinitThumbnailStore(fn func(path string) error) { m.onThumbnailStorePath = fn }

// Current returns the active root. The zero Root if none is selected yet.
func (m *Manager) Current() Root {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// List returns every configured root.
func (m *Manager) List() []Root {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Root, len(m.roots))
	copy(out, m.roots)
	return out
}

// DB returns the catalog Database bound to the currently active root.
func (m *Manager) DB() *database.Database {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.db
}

// AddRoot appends a new configured root and persists roots.json.
func (m *Manager) AddRoot(r Root) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.roots {
		if existing.Name == r.Name {
			return fmt.Errorf("rootmanager: root %q already configured", r.Name)
		}
	}
	m.roots = append(m.roots, r)
	return saveRootsFile(m.rootsPath, &rootsFile{Roots: m.roots, RememberLastRoot: m.remember})
}

// CatalogPath returns the catalog database path for a root.
func CatalogPath(rootPath string) string {
	return filepath.Join(rootPath, catalogSubdir, catalogDBName)
}

// openRoot ensures the per-root layout directories exist and opens the
// catalog database at <path>/.clipper/clipper.db, running schema migration
// as a side effect of database.New.
func (m *Manager) openRoot(ctx context.Context, r Root) error {
	clipperDir := filepath.Join(r.Path, catalogSubdir)
	if err := os.MkdirAll(filepath.Join(clipperDir, audiosSubdir), 0o755); err != nil {
		return fmt.Errorf("create root layout: %w", err)
	}

	db, _, err := database.New(ctx, CatalogPath(r.Path), m.dbOpts)
	if err != nil {
		return fmt.Errorf("open catalog database: %w", err)
	}

	m.db = db
	m.current = r
	return nil
}

// Select switches the active root: quiesce, dispose the old store,
// invalidate the thumbnail cache handle, reset the face model cache flag,
// re-point the store to the new root (creating its layout), re-initialize
// the thumbnail cache, and run schema migration. If opening the new store
// fails, the previous root's store is reopened and Select returns an error
// with no visible partial state; if that rollback itself fails, the manager
// is marked unhealthy and every subsequent call returns ErrUnhealthy.
func (m *Manager) Select(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.unhealthy {
		return ErrUnhealthy
	}

	var target Root
	found := false
	for _, r := range m.roots {
		if r.Name == name {
			target = r
			found = true
			break
		}
	}
	if !found {
		return ErrRootNotFound
	}

	previous := m.current
	previousDB := m.db

	// Dispose the old store connection.
	if previousDB != nil {
		if err := previousDB.Close(); err != nil {
			logging.Warn("rootmanager: error closing previous catalog database: %v", err)
		}
	}
	m.db = nil

	// Invalidate caches that reference the outgoing root.
	if m.onInvalidateThumbnails != nil {
		m.onInvalidateThumbnails()
	}
	if m.onResetFaceModel != nil {
		m.onResetFaceModel()
	}

	// Re-point the store to the new root and run migration (database.New
	// performs schema init/migration internally).
	if err := m.openRoot(ctx, target); err != nil {
		logging.Error("rootmanager: failed to open new root %q, rolling back to %q: %v", target.Name, previous.Name, err)
		if previous.Path == "" {
			// No previous root to roll back to; there was nothing active
			// before this Select call.
			return fmt.Errorf("select root %q: %w", name, err)
		}
		if rollbackErr := m.openRoot(ctx, previous); rollbackErr != nil {
			m.unhealthy = true
			return fmt.Errorf("select root %q failed (%v) and rollback to %q also failed: %w", name, err, previous.Name, rollbackErr)
		}
		return fmt.Errorf("select root %q: %w (rolled back to %q)", name, err, previous.Name)
	}

	// Re-initialize the thumbnail cache at the new root's path.
	if m.onThumbnailStorePath != nil {
		thumbPath := filepath.Join(target.Path, catalogSubdir, "thumbnails.db")
		if err := m.onThumbnailStorePath(thumbPath); err != nil {
			logging.Warn("rootmanager: thumbnail store re-init failed for %q: %v", thumbPath, err)
		}
	}

	return nil
}

// Close disposes the active catalog database, if any.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.db == nil {
		return nil
	}
	err := m.db.Close()
	m.db = nil
	return err
}
