package product

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/storefront/service/internal/storage"
)

// ImageStore is the bucket surface the product service needs.
type ImageStore interface {
	Upload(ctx context.Context, name string, r io.Reader, size int64, contentType string) (storage.Location, error)
	Delete(ctx context.Context, name string) error
}

// Image is an uploaded file attached to a create or update request.
type Image struct {
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// Service contains business logic for the product catalogue.
type Service struct {
	repo   Repository
	images ImageStore
	events Publisher
	now    func() time.Time
}

// NewService creates a new product Service. A nil publisher disables events.
func NewService(repo Repository, images ImageStore, events Publisher) *Service {
	if events == nil {
		events = NopPublisher{}
	}
	return &Service{repo: repo, images: images, events: events, now: time.Now}
}

// List returns all products, newest first.
func (s *Service) List(ctx context.Context) ([]Product, error) {
	return s.repo.List(ctx)
}

// Get returns a single product.
func (s *Service) Get(ctx context.Context, id string) (*Product, error) {
	return s.repo.GetByID(ctx, id)
}

// Create validates f, uploads img and persists the product. Nothing is persisted if the
// upload fails; a persistence failure after a successful upload leaves the object behind.
func (s *Service) Create(ctx context.Context, f Fields, img *Image) (*Product, error) {
	p, err := f.newProduct()
	if err != nil {
		return nil, err
	}
	if img == nil {
		return nil, &ValidationError{Message: "image file is required"}
	}

	loc, err := s.upload(ctx, img)
	if err != nil {
		return nil, err
	}
	p.ImageURL, p.ImageKey, p.ImageStorage = loc.URL, loc.Key, loc.Mode

	if err := s.repo.Create(ctx, p); err != nil {
		log.Ctx(ctx).Error().Err(err).Str("component", "product").Str("object", loc.Key).Msg("product not saved, uploaded image is orphaned")
		return nil, fmt.Errorf("create product: %w", err)
	}

	log.Ctx(ctx).Info().Str("component", "product").Str("product_id", p.ID).Str("image_url", p.ImageURL).Msg("product created")
	s.publish(ctx, EventCreated, p.ID, p)
	return p, nil
}

// Update applies f to the product and, when img is given, swaps its image. The new image
// is uploaded and saved before the old one is deleted, so a failed upload leaves the
// product untouched.
func (s *Service) Update(ctx context.Context, id string, f Fields, img *Image) (*Product, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := f.apply(p); err != nil {
		return nil, err
	}

	oldKey := p.ObjectKey()
	var loc storage.Location
	if img != nil {
		if loc, err = s.upload(ctx, img); err != nil {
			return nil, err
		}
		p.ImageURL, p.ImageKey, p.ImageStorage = loc.URL, loc.Key, loc.Mode
	}

	if err := s.repo.Update(ctx, p); err != nil {
		if img != nil {
			log.Ctx(ctx).Error().Err(err).Str("component", "product").Str("object", loc.Key).Msg("product not saved, uploaded image is orphaned")
		}
		return nil, fmt.Errorf("update product: %w", err)
	}

	if img != nil && oldKey != "" && oldKey != loc.Key {
		s.deleteImage(ctx, oldKey)
	}

	s.publish(ctx, EventUpdated, p.ID, p)
	return p, nil
}

// Delete removes the product. Image deletion is best-effort and never blocks it.
func (s *Service) Delete(ctx context.Context, id string) error {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if key := p.ObjectKey(); key != "" {
		s.deleteImage(ctx, key)
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete product: %w", err)
	}

	s.publish(ctx, EventDeleted, id, nil)
	return nil
}

func (s *Service) upload(ctx context.Context, img *Image) (storage.Location, error) {
	name := fmt.Sprintf("%d-%s", s.now().UnixMilli(), objectBaseName(img.Filename))

	loc, err := s.images.Upload(ctx, name, img.Body, img.Size, img.ContentType)
	if err != nil {
		return storage.Location{}, fmt.Errorf("upload image: %w", err)
	}
	if strings.TrimSpace(loc.URL) == "" {
		return storage.Location{}, fmt.Errorf("upload image: %w: empty location for %q", storage.ErrUpload, name)
	}
	return loc, nil
}

func (s *Service) deleteImage(ctx context.Context, key string) {
	if err := s.images.Delete(ctx, key); err != nil {
		log.Ctx(ctx).Warn().Err(err).Str("component", "product").Str("object", key).Msg("failed to delete image")
	}
}

func (s *Service) publish(ctx context.Context, t EventType, id string, p *Product) {
	e := Event{Type: t, ProductID: id, Product: p, OccurredAt: s.now().UTC()}
	if err := s.events.Publish(ctx, e); err != nil {
		log.Ctx(ctx).Warn().Err(err).Str("component", "product").Str("event", string(t)).Msg("failed to publish event")
	}
}

// objectBaseName strips any client-supplied directories from filename.
func objectBaseName(filename string) string {
	base := path.Base(strings.ReplaceAll(strings.TrimSpace(filename), `\`, "/"))
	if base == "." || base == "/" || base == "" {
		return "image"
	}
	return base
}
