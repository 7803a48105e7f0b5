package catalog

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/panjf2000/ants/v2"
)

// MemoryName is the name of the in-memory database.
const MemoryName = ":memory:"

// Database is one registered database.
//
// Identity is Name. Path is empty for the in-memory database.
type Database struct {
	Name      string
	Path      string
	IsMutable bool
	IsMemory  bool

	hashOnce sync.Once
	hash     string
	hashErr  error
}

// Size returns the current file size in bytes. Memory databases report 0.
func (d *Database) Size() (int64, error) {
	if d.IsMemory {
		return 0, nil
	}
	info, err := os.Stat(d.Path)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// Hash returns the sha256 of the file contents as lowercase hex.
// Computed once; memory databases return "".
func (d *Database) Hash() (string, error) {
	if d.IsMemory {
		return "", nil
	}
	d.hashOnce.Do(func() {
		d.hash, d.hashErr = hashFile(d.Path)
	})
	return d.hash, d.hashErr
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// DuplicateNameError reports two files that derive the same database name.
type DuplicateNameError struct {
	Name  string
	Paths []string
}

func (e *DuplicateNameError) Error() string {
	return fmt.Sprintf("multiple files with same stem %q: %s", e.Name, strings.Join(e.Paths, ", "))
}

// Catalog is the registration-ordered set of databases.
// Read-only after New returns.
type Catalog struct {
	order  []*Database
	byName map[string]*Database
}

// New registers files (mutable), then immutables, in the given order.
//
// With no files at all a single in-memory database is registered.
// With memory=true the in-memory database is registered first.
func New(files, immutables []string, memory bool) (*Catalog, error) {
	c := &Catalog{byName: make(map[string]*Database)}

	if memory || len(files)+len(immutables) == 0 {
		c.add(&Database{Name: MemoryName, IsMemory: true, IsMutable: true})
	}

	immutable := make(map[string]bool, len(immutables))
	for _, p := range immutables {
		immutable[p] = true
	}

	all := make([]string, 0, len(files)+len(immutables))
	all = append(all, files...)
	all = append(all, immutables...)

	for _, path := range all {
		db := &Database{
			Name:      nameFromPath(path),
			Path:      path,
			IsMutable: !immutable[path],
		}
		if existing, ok := c.byName[db.Name]; ok {
			return nil, &DuplicateNameError{Name: db.Name, Paths: []string{existing.Path, path}}
		}
		c.add(db)
	}

	return c, nil
}

func (c *Catalog) add(db *Database) {
	c.order = append(c.order, db)
	c.byName[db.Name] = db
}

// nameFromPath returns the file stem: base name without its last extension.
func nameFromPath(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Get returns the database registered under name.
func (c *Catalog) Get(name string) (*Database, bool) {
	db, ok := c.byName[name]
	return db, ok
}

// All returns databases in registration order.
func (c *Catalog) All() []*Database {
	out := make([]*Database, len(c.order))
	copy(out, c.order)
	return out
}

// Names returns database names in registration order.
func (c *Catalog) Names() []string {
	names := make([]string, len(c.order))
	for i, db := range c.order {
		names[i] = db.Name
	}
	return names
}

// Info is one entry of the connected-databases listing.
type Info struct {
	Name      string `json:"name"`
	Path      string `json:"path,omitempty"`
	Size      int64  `json:"size"`
	IsMutable bool   `json:"is_mutable"`
	IsMemory  bool   `json:"is_memory"`
	Hash      string `json:"hash,omitempty"`
}

// Connected lists databases sorted by name. Hashes are included only when
// withHash is set, since hashing reads every file in full.
func (c *Catalog) Connected(withHash bool) ([]Info, error) {
	dbs := c.All()
	sort.Slice(dbs, func(i, j int) bool { return dbs[i].Name < dbs[j].Name })

	infos := make([]Info, 0, len(dbs))
	for _, db := range dbs {
		size, err := db.Size()
		if err != nil {
			return nil, err
		}
		info := Info{
			Name:      db.Name,
			Path:      db.Path,
			Size:      size,
			IsMutable: db.IsMutable,
			IsMemory:  db.IsMemory,
		}
		if withHash {
			if info.Hash, err = db.Hash(); err != nil {
				return nil, err
			}
		}
		infos = append(infos, info)
	}
	return infos, nil
}

// ComputeHashes hashes every file-backed database using at most workers
// concurrent readers. Returns the first error encountered.
func (c *Catalog) ComputeHashes(ctx context.Context, workers int) error {
	if workers < 1 {
		workers = 1
	}

	var (
		mu       sync.Mutex
		firstErr error
		wg       sync.WaitGroup
	)
	record := func(err error) {
		mu.Lock()
		defer mu.Unlock()
		if firstErr == nil {
			firstErr = err
		}
	}

	pool, err := ants.NewPool(workers, ants.WithPanicHandler(func(v any) {
		slog.Error("hash worker panic", "panic", v)
		record(fmt.Errorf("hash worker panic: %v", v))
	}))
	if err != nil {
		return fmt.Errorf("create hash pool: %w", err)
	}
	defer pool.Release()

	for _, db := range c.order {
		if db.IsMemory {
			continue
		}
		if err := ctx.Err(); err != nil {
			record(err)
			break
		}
		wg.Add(1)
		submitErr := pool.Submit(func() {
			defer wg.Done()
			if _, err := db.Hash(); err != nil {
				record(err)
				return
			}
			slog.Debug("database hashed", "database", db.Name)
		})
		if submitErr != nil {
			wg.Done()
			record(fmt.Errorf("submit hash of %s: %w", db.Name, submitErr))
			break
		}
	}

	wg.Wait()
	return firstErr
}
