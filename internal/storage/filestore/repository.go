package filestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"coupon-clipper/internal/storage"
)

type document struct {
	Sites map[string]*storage.RunState `json:"sites"`
}

// Repository хранит прогресс в одном JSON-файле. Запись атомарная: временный файл и rename.
type Repository struct {
	path string
	mu   sync.Mutex
	now  func() time.Time
}

func NewRepository(path string) *Repository {
	return &Repository{path: path, now: time.Now}
}

func (r *Repository) read() (*document, error) {
	doc := &document{Sites: map[string]*storage.RunState{}}

	data, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return doc, nil
		}
		return nil, fmt.Errorf("failed to read state file: %w", err)
	}
	if len(data) == 0 {
		return doc, nil
	}
	if err := json.Unmarshal(data, doc); err != nil {
		return nil, fmt.Errorf("failed to parse state file %s: %w", r.path, err)
	}
	if doc.Sites == nil {
		doc.Sites = map[string]*storage.RunState{}
	}
	return doc, nil
}

func (r *Repository) write(doc *document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode state: %w", err)
	}

	dir := filepath.Dir(r.path)
	tmp, err := os.CreateTemp(dir, ".coupon-state-*")
	if err != nil {
		return fmt.Errorf("failed to create temp state file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp state file: %w", err)
	}
	if err := os.Rename(tmpName, r.path); err != nil {
		return fmt.Errorf("failed to replace state file: %w", err)
	}
	return nil
}

func (r *Repository) Load(ctx context.Context, site string) (*storage.RunState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	doc, err := r.read()
	if err != nil {
		return nil, err
	}
	state, ok := doc.Sites[site]
	if !ok {
		return nil, nil
	}
	return state, nil
}

func (r *Repository) LastSite(ctx context.Context) (*storage.RunState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	doc, err := r.read()
	if err != nil {
		return nil, err
	}
	var last *storage.RunState
	for _, state := range doc.Sites {
		if last == nil || state.UpdatedAt.After(last.UpdatedAt) {
			last = state
		}
	}
	return last, nil
}

func (r *Repository) Save(ctx context.Context, state *storage.RunState) error {
	if state == nil || state.Site == "" {
		return errors.New("state without site")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	doc, err := r.read()
	if err != nil {
		return err
	}
	saved := *state
	saved.UpdatedAt = r.now().UTC()
	doc.Sites[state.Site] = &saved
	return r.write(doc)
}

func (r *Repository) Reset(ctx context.Context, site string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	doc, err := r.read()
	if err != nil {
		return err
	}
	if _, ok := doc.Sites[site]; !ok {
		return nil
	}
	delete(doc.Sites, site)
	return r.write(doc)
}

func (r *Repository) Close() error {
	return nil
}
