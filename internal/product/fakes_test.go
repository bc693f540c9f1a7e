package product

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/storefront/service/internal/storage"
)

// memoryRepo is an in-memory Repository.
type memoryRepo struct {
	mu        sync.Mutex
	seq       int
	products  map[string]Product
	createErr error
	updateErr error
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{products: make(map[string]Product)}
}

func (r *memoryRepo) List(context.Context) ([]Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Product, 0, len(r.products))
	for _, p := range r.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *memoryRepo) GetByID(_ context.Context, id string) (*Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.products[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (r *memoryRepo) Create(_ context.Context, p *Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.createErr != nil {
		return r.createErr
	}
	r.seq++
	p.ID = fmt.Sprintf("p%d", r.seq)
	p.CreatedAt = time.Unix(int64(r.seq), 0).UTC()
	p.UpdatedAt = p.CreatedAt
	r.products[p.ID] = *p
	return nil
}

func (r *memoryRepo) Update(_ context.Context, p *Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.updateErr != nil {
		return r.updateErr
	}
	if _, ok := r.products[p.ID]; !ok {
		return ErrNotFound
	}
	r.products[p.ID] = *p
	return nil
}

func (r *memoryRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.products[id]; !ok {
		return ErrNotFound
	}
	delete(r.products, id)
	return nil
}

func (r *memoryRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.products)
}

type storedObject struct {
	data        []byte
	contentType string
}

// memoryBucket stores objects in memory and serves both the product service and the image proxy.
type memoryBucket struct {
	mu        sync.Mutex
	objects   map[string]storedObject
	deleted   []string
	uploadErr error
	deleteErr error
}

func newMemoryBucket() *memoryBucket {
	return &memoryBucket{objects: make(map[string]storedObject)}
}

func (b *memoryBucket) Upload(_ context.Context, name string, r io.Reader, _ int64, contentType string) (storage.Location, error) {
	if b.uploadErr != nil {
		return storage.Location{}, b.uploadErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return storage.Location{}, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[name] = storedObject{data: data, contentType: contentType}
	return storage.Location{Key: name, URL: storage.ProxyRoute + name, Mode: storage.ModeProxy}, nil
}

func (b *memoryBucket) Delete(_ context.Context, name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.deleted = append(b.deleted, name)
	if b.deleteErr != nil {
		return b.deleteErr
	}
	delete(b.objects, name)
	return nil
}

func (b *memoryBucket) Authorize(context.Context) (storage.Session, error) {
	return storage.Session{Authorized: true, BucketName: "memory"}, nil
}

func (b *memoryBucket) Download(_ context.Context, name string) (*storage.Object, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	obj, ok := b.objects[name]
	if !ok {
		return nil, fmt.Errorf("download %s: %w", name, storage.ErrNotFound)
	}
	return &storage.Object{
		Body:        io.NopCloser(bytes.NewReader(obj.data)),
		ContentType: obj.contentType,
		Size:        int64(len(obj.data)),
	}, nil
}

func (b *memoryBucket) has(name string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.objects[name]
	return ok
}

func (b *memoryBucket) names() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]string, 0, len(b.objects))
	for name := range b.objects {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// recordingPublisher keeps every published event.
type recordingPublisher struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, e Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return p.err
}

func (p *recordingPublisher) types() []EventType {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]EventType, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

// tickingClock returns a time one millisecond later on every call.
func tickingClock(start int64) func() time.Time {
	var mu sync.Mutex
	next := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t := time.UnixMilli(next)
		next++
		return t
	}
}

var errBoom = errors.New("boom")
