// Package memory keeps blobs in process memory, for tests and the in-memory deployment.
package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/mamadbah2/shellsale/internal/blob"
)

type object struct {
	data []byte
	info blob.Info
}

// Store implements blob.Store over a map.
type Store struct {
	mu      sync.RWMutex
	objects map[string]object
	now     func() time.Time
}

// New returns an empty store.
func New() *Store {
	return &Store{objects: map[string]object{}, now: time.Now}
}

func (s *Store) Driver() blob.Driver { return blob.DriverMemory }

func (s *Store) Put(ctx context.Context, key string, r io.Reader, opts blob.PutOptions) (blob.Info, error) {
	if err := ctx.Err(); err != nil {
		return blob.Info{}, err
	}
	clean, err := blob.CleanKey(key)
	if err != nil {
		return blob.Info{}, err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return blob.Info{}, fmt.Errorf("read blob %s: %w", clean, err)
	}
	info := blob.Info{
		Key:          clean,
		Size:         int64(len(data)),
		ContentType:  opts.ContentType,
		Metadata:     maps.Clone(opts.Metadata),
		LastModified: s.now().UTC(),
	}

	s.mu.Lock()
	s.objects[clean] = object{data: data, info: info}
	s.mu.Unlock()
	return info, nil
}

func (s *Store) Get(ctx context.Context, key string) (blob.Info, io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return blob.Info{}, nil, err
	}
	clean, err := blob.CleanKey(key)
	if err != nil {
		return blob.Info{}, nil, err
	}
	s.mu.RLock()
	obj, ok := s.objects[clean]
	s.mu.RUnlock()
	if !ok {
		return blob.Info{}, nil, fmt.Errorf("%w: %s", blob.ErrNotFound, clean)
	}
	return obj.info, io.NopCloser(bytes.NewReader(obj.data)), nil
}

// Keys lists stored keys in order.
func (s *Store) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.objects))
	for k := range s.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
