// Package storefs persists cache entries on a filesystem.
//
// Layout mirrors the namespace hierarchy: <owner>/<method>/<fingerprint>/
// with result.bin, an optional state.bin, and a meta.json sidecar. An entry
// is materialized in a temporary directory and published with a single
// rename, so readers observe either a complete entry or none. Publication
// is the only write; entries are never mutated in place.
//
// The store is backed by a billy.Filesystem, which keeps production on the
// OS filesystem and tests on an in-memory one behind the same code path.
package storefs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/goliatone/go-method-cache/cache"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	resultFile = "result.bin"
	stateFile  = "state.bin"
	metaFile   = "meta.json"
)

// errEntryCorrupt marks an entry whose contents are damaged rather than
// temporarily unreadable. Only corrupt entries are removed on read.
var errEntryCorrupt = errors.New("storefs: corrupt entry")

// Store implements cache.Store on a billy filesystem.
type Store struct {
	fs billy.Filesystem

	// locks serializes in-process writers per entry path. Cross-process
	// writers are serialized by the rename publish: the first rename
	// wins, later ones find the directory already present.
	locks *xsync.MapOf[string, *sync.Mutex]
}

var _ cache.Store = (*Store)(nil)

// New creates a store rooted at the given filesystem.
func New(fs billy.Filesystem) *Store {
	return &Store{
		fs:    fs,
		locks: xsync.NewMapOf[string, *sync.Mutex](),
	}
}

// NewOS creates a store rooted at dir on the OS filesystem.
func NewOS(dir string) *Store {
	return New(osfs.New(dir))
}

func (s *Store) entryDir(ns cache.Namespace, fp cache.Fingerprint) string {
	return s.fs.Join(ns.Owner, ns.Method, fp.Hex())
}

// Get reads an entry. Missing fingerprints return ok=false; corrupted or
// partially-written directories are removed and reported absent so a later
// write heals them.
func (s *Store) Get(_ context.Context, ns cache.Namespace, fp cache.Fingerprint) (cache.Entry, bool, error) {
	dir := s.entryDir(ns, fp)

	if _, err := s.fs.Stat(dir); err != nil {
		if os.IsNotExist(err) {
			return cache.Entry{}, false, nil
		}
		return cache.Entry{}, false, fmt.Errorf("storefs: stat %s: %w", dir, err)
	}

	entry, err := s.readEntry(dir)
	if err != nil {
		// Self-heal only genuine corruption (torn writes, undecodable
		// meta). Transient I/O failures must not destroy a healthy
		// entry; they fail the current call instead.
		if os.IsNotExist(err) || errors.Is(err, errEntryCorrupt) {
			_ = util.RemoveAll(s.fs, dir)
			return cache.Entry{}, false, nil
		}
		return cache.Entry{}, false, fmt.Errorf("storefs: read %s: %w", dir, err)
	}
	return entry, true, nil
}

func (s *Store) readEntry(dir string) (cache.Entry, error) {
	metaData, err := s.readFile(s.fs.Join(dir, metaFile))
	if err != nil {
		return cache.Entry{}, err
	}
	var entry cache.Entry
	if err := json.Unmarshal(metaData, &entry.Meta); err != nil {
		return cache.Entry{}, fmt.Errorf("%w: %v", errEntryCorrupt, err)
	}

	entry.Result, err = s.readFile(s.fs.Join(dir, resultFile))
	if err != nil {
		return cache.Entry{}, err
	}

	if entry.Meta.Stateful {
		entry.State, err = s.readFile(s.fs.Join(dir, stateFile))
		if err != nil {
			return cache.Entry{}, err
		}
	}
	return entry, nil
}

// PutIfAbsent materializes the entry in a temporary directory and publishes
// it with one rename. When another writer already published this
// fingerprint it returns inserted=false without error.
func (s *Store) PutIfAbsent(_ context.Context, ns cache.Namespace, fp cache.Fingerprint, entry cache.Entry) (bool, error) {
	dir := s.entryDir(ns, fp)

	mu, _ := s.locks.LoadOrStore(dir, &sync.Mutex{})
	mu.Lock()
	defer mu.Unlock()

	if complete, err := s.exists(dir); err != nil {
		return false, err
	} else if complete {
		return false, nil
	}

	tmp := s.fs.Join(ns.Owner, ns.Method, ".tmp-"+uuid.NewString())
	if err := s.writeEntry(tmp, entry); err != nil {
		_ = util.RemoveAll(s.fs, tmp)
		return false, err
	}

	if err := s.fs.Rename(tmp, dir); err != nil {
		_ = util.RemoveAll(s.fs, tmp)
		// A concurrent process may have published between our check
		// and the rename; that is the expected conflict, not a fault.
		if complete, checkErr := s.exists(dir); checkErr == nil && complete {
			return false, nil
		}
		return false, fmt.Errorf("storefs: publish %s: %w", dir, err)
	}
	return true, nil
}

// Delete removes an entry's directory. Missing entries are a no-op.
func (s *Store) Delete(_ context.Context, ns cache.Namespace, fp cache.Fingerprint) error {
	dir := s.entryDir(ns, fp)

	mu, _ := s.locks.LoadOrStore(dir, &sync.Mutex{})
	mu.Lock()
	defer mu.Unlock()

	if err := util.RemoveAll(s.fs, dir); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("storefs: delete %s: %w", dir, err)
	}
	return nil
}

// exists reports whether a complete entry occupies dir. A directory without
// its meta sidecar is a torn write and is cleared.
func (s *Store) exists(dir string) (bool, error) {
	if _, err := s.fs.Stat(dir); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("storefs: stat %s: %w", dir, err)
	}
	if _, err := s.fs.Stat(s.fs.Join(dir, metaFile)); err != nil {
		if os.IsNotExist(err) {
			_ = util.RemoveAll(s.fs, dir)
			return false, nil
		}
		return false, fmt.Errorf("storefs: stat %s: %w", dir, err)
	}
	return true, nil
}

func (s *Store) writeEntry(dir string, entry cache.Entry) error {
	if err := s.fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("storefs: mkdir %s: %w", dir, err)
	}

	if err := s.writeFile(s.fs.Join(dir, resultFile), entry.Result); err != nil {
		return err
	}
	if entry.Stateful() {
		if err := s.writeFile(s.fs.Join(dir, stateFile), entry.State); err != nil {
			return err
		}
	}

	metaData, err := json.Marshal(entry.Meta)
	if err != nil {
		return fmt.Errorf("storefs: encode meta: %w", err)
	}
	// The meta sidecar goes last inside the temp dir; its presence marks
	// the entry complete.
	return s.writeFile(s.fs.Join(dir, metaFile), metaData)
}

func (s *Store) readFile(path string) ([]byte, error) {
	f, err := s.fs.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

func (s *Store) writeFile(path string, data []byte) error {
	f, err := s.fs.Create(path)
	if err != nil {
		return fmt.Errorf("storefs: create %s: %w", path, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("storefs: write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("storefs: close %s: %w", path, err)
	}
	return nil
}
