package flags

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"mercator-hq/relay/pkg/listenable"
)

// FileStoreConfig configures a FileStore.
type FileStoreConfig struct {
	// Path is the YAML file holding "name: value" properties.
	Path string

	// Watch enables hot reload on file changes.
	Watch bool

	// DebounceInterval is the quiet period before a reload.
	// Default: 100ms
	DebounceInterval time.Duration
}

// FileStore is a Store backed by a flat YAML mapping. Scalar values are
// kept in their textual form; sequences are joined with commas so they
// read naturally as string-list flags.
type FileStore struct {
	config  FileStoreConfig
	mem     *MemoryStore
	watcher *fileWatcher
	logger  *slog.Logger

	mu      sync.Mutex
	reloads int64
}

// NewFileStore loads path. A missing file yields an empty store so a
// deployment can create the file later and have it picked up.
func NewFileStore(cfg FileStoreConfig) (*FileStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("flag file path cannot be empty")
	}
	if cfg.DebounceInterval == 0 {
		cfg.DebounceInterval = 100 * time.Millisecond
	}

	s := &FileStore{
		config: cfg,
		mem:    NewMemoryStore(nil),
		logger: slog.Default().With("component", "flags.file", "path", cfg.Path),
	}

	props, err := readPropertyFile(cfg.Path)
	if err != nil {
		return nil, err
	}
	s.mem.Replace(props)
	return s, nil
}

// Lookup implements Store.
func (s *FileStore) Lookup(name string) (string, bool) { return s.mem.Lookup(name) }

// Snapshot implements Store.
func (s *FileStore) Snapshot() map[string]string { return s.mem.Snapshot() }

// Listenable implements Store.
func (s *FileStore) Listenable() listenable.Listenable[Listener] { return s.mem.Listenable() }

// Reload re-reads the file and publishes changed names. On a read or
// parse error the current properties are kept.
func (s *FileStore) Reload() ([]string, error) {
	props, err := readPropertyFile(s.config.Path)
	if err != nil {
		return nil, err
	}
	changed := s.mem.Replace(props)

	s.mu.Lock()
	s.reloads++
	s.mu.Unlock()

	if len(changed) > 0 {
		s.logger.Info("flag file reloaded", "changed", changed)
	}
	return changed, nil
}

// Reloads returns the number of successful reloads.
func (s *FileStore) Reloads() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reloads
}

// Watch blocks, reloading on file changes, until ctx is cancelled or Close
// is called. It returns immediately if watching is disabled.
func (s *FileStore) Watch(ctx context.Context) error {
	if !s.config.Watch {
		return nil
	}
	w, err := newFileWatcher(s.config.Path, s.config.DebounceInterval, s.logger)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.watcher = w
	s.mu.Unlock()

	return w.watch(ctx, func() {
		if _, err := s.Reload(); err != nil {
			s.logger.Error("flag file reload failed, keeping previous values", "error", err)
		}
	})
}

// Close stops watching.
func (s *FileStore) Close() error {
	s.mu.Lock()
	w := s.watcher
	s.watcher = nil
	s.mu.Unlock()

	if w == nil {
		return nil
	}
	return w.stop()
}

func readPropertyFile(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read flag file %q: %w", path, err)
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse flag file %q: %w", path, err)
	}

	props := make(map[string]string, len(raw))
	for name, value := range raw {
		if value == nil {
			continue
		}
		props[name] = formatProperty(value)
	}
	return props, nil
}

func formatProperty(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case uint64:
		return strconv.FormatUint(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case []any:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			if item != nil {
				parts = append(parts, formatProperty(item))
			}
		}
		return strings.Join(parts, ",")
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, k+"="+formatProperty(v[k]))
		}
		return strings.Join(parts, ",")
	default:
		return fmt.Sprint(v)
	}
}
