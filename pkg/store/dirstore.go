package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/goliatone/go-ticketform/pkg/schema"
)

// DirSchemaStore serves compiled schemas from a directory of JSON/YAML
// documents. A reference is the file name without extension: ref
// "ticket.edit" resolves ticket.edit.yaml, ticket.edit.yml or
// ticket.edit.json, in that order.
//
// Compiled schemas are cached; concurrent loads of the same reference are
// coalesced. With watching enabled the cache entry for a changed file is
// dropped so the next load picks up the new document. Running sessions
// keep the compiled schema they were created with: a new version is a new
// schema instance.
type DirSchemaStore struct {
	dir    string
	logger *zap.Logger

	group singleflight.Group

	mu    sync.RWMutex
	cache map[string]*schema.CompiledSchema

	watcher *fsnotify.Watcher
	done    chan struct{}
}

var _ SchemaStore = (*DirSchemaStore)(nil)

var schemaExtensions = []string{".yaml", ".yml", ".json"}

// DirOption customises a DirSchemaStore.
type DirOption func(*DirSchemaStore)

// WithLogger attaches a structured logger; the default is a no-op logger.
func WithLogger(logger *zap.Logger) DirOption {
	return func(s *DirSchemaStore) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewDirSchemaStore creates a store over dir without file watching.
func NewDirSchemaStore(dir string, opts ...DirOption) (*DirSchemaStore, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("store: schema dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("store: schema dir %q is not a directory", dir)
	}

	s := &DirSchemaStore{
		dir:    dir,
		logger: zap.NewNop(),
		cache:  make(map[string]*schema.CompiledSchema),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Watch starts invalidating cached schemas when their files change. Call
// Close to stop the watcher.
func (s *DirSchemaStore) Watch() error {
	if s.watcher != nil {
		return errors.New("store: already watching")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("store: start watcher: %w", err)
	}
	if err := watcher.Add(s.dir); err != nil {
		watcher.Close()
		return fmt.Errorf("store: watch %s: %w", s.dir, err)
	}

	s.watcher = watcher
	s.done = make(chan struct{})
	go s.watchLoop()
	return nil
}

// Close stops the watcher, if one is running.
func (s *DirSchemaStore) Close() error {
	if s.watcher == nil {
		return nil
	}
	err := s.watcher.Close()
	<-s.done
	return err
}

// LoadSchema resolves, parses and compiles the referenced schema.
func (s *DirSchemaStore) LoadSchema(ctx context.Context, ref string) (*schema.CompiledSchema, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, errors.New("store: schema ref is empty")
	}

	s.mu.RLock()
	cached, ok := s.cache[ref]
	s.mu.RUnlock()
	if ok {
		return cached, nil
	}

	compiled, err, _ := s.group.Do(ref, func() (any, error) {
		return s.load(ref)
	})
	if err != nil {
		return nil, err
	}
	return compiled.(*schema.CompiledSchema), nil
}

func (s *DirSchemaStore) load(ref string) (*schema.CompiledSchema, error) {
	path, err := s.resolve(ref)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("store: read schema %s: %w", path, err)
	}

	compiled, err := schema.ParseCompile(data)
	if err != nil {
		return nil, fmt.Errorf("store: schema %q: %w", ref, err)
	}

	s.mu.Lock()
	s.cache[ref] = compiled
	s.mu.Unlock()

	s.logger.Debug("schema loaded",
		zap.String("ref", ref),
		zap.String("schema", compiled.ID()),
		zap.String("version", compiled.Version()),
	)
	return compiled, nil
}

func (s *DirSchemaStore) resolve(ref string) (string, error) {
	// Refs are bare names, never paths into subdirectories.
	if strings.ContainsAny(ref, `/\`) || ref != filepath.Base(ref) {
		return "", fmt.Errorf("store: invalid schema ref %q", ref)
	}

	for _, ext := range schemaExtensions {
		path := filepath.Join(s.dir, ref+ext)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		} else if !errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("store: resolve schema %q: %w", ref, err)
		}
	}
	return "", fmt.Errorf("store: schema %q: %w", ref, ErrNotFound)
}

func (s *DirSchemaStore) watchLoop() {
	defer close(s.done)
	for {
		select {
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			ref := refForPath(event.Name)
			if ref == "" {
				continue
			}
			s.mu.Lock()
			_, cached := s.cache[ref]
			delete(s.cache, ref)
			s.mu.Unlock()
			if cached {
				s.logger.Info("schema cache invalidated",
					zap.String("ref", ref),
					zap.String("event", event.Op.String()),
				)
			}
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.logger.Warn("schema watcher error", zap.Error(err))
		}
	}
}

func refForPath(path string) string {
	base := filepath.Base(path)
	ext := strings.ToLower(filepath.Ext(base))
	for _, known := range schemaExtensions {
		if ext == known {
			return strings.TrimSuffix(base, filepath.Ext(base))
		}
	}
	return ""
}
