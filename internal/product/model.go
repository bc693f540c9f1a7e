// Package product manages the product catalogue and its images.
package product

import (
	"errors"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/storefront/service/internal/storage"
)

// ErrNotFound is returned when a product does not exist.
var ErrNotFound = errors.New("product not found")

// Product is a catalogue entry.
type Product struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Price       float64 `json:"price"`
	Description string  `json:"description"`
	Category    string  `json:"category"`
	// ImageURL is the location returned by the bucket at write time.
	ImageURL string `json:"imageUrl"`
	// ImageKey is the object name under the bucket prefix.
	ImageKey     string          `json:"imageKey,omitempty"`
	ImageStorage storage.URLMode `json:"imageStorage,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}

// ObjectKey returns the object name of the product image. Records written before ImageKey
// was stored fall back to the last segment of ImageURL.
func (p *Product) ObjectKey() string {
	if p.ImageKey != "" {
		return p.ImageKey
	}
	if p.ImageURL == "" {
		return ""
	}
	last := p.ImageURL[strings.LastIndex(p.ImageURL, "/")+1:]
	if unescaped, err := url.PathUnescape(last); err == nil {
		return unescaped
	}
	return last
}

// ValidationError reports missing or malformed product fields.
type ValidationError struct {
	Message string
	Fields  []string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Message, strings.Join(e.Fields, ", "))
}

// Fields carries the text fields of a create or update request. Empty strings mean absent.
type Fields struct {
	Name        string
	Price       string
	Description string
	Category    string
}

func (f Fields) trimmed() Fields {
	return Fields{
		Name:        strings.TrimSpace(f.Name),
		Price:       strings.TrimSpace(f.Price),
		Description: strings.TrimSpace(f.Description),
		Category:    strings.TrimSpace(f.Category),
	}
}

// newProduct validates f as a create request.
func (f Fields) newProduct() (*Product, error) {
	f = f.trimmed()

	var missing []string
	for _, field := range []struct{ name, value string }{
		{"name", f.Name},
		{"price", f.Price},
		{"description", f.Description},
		{"category", f.Category},
	} {
		if field.value == "" {
			missing = append(missing, field.name)
		}
	}
	if len(missing) > 0 {
		return nil, &ValidationError{Message: "missing required fields", Fields: missing}
	}

	price, err := parsePrice(f.Price)
	if err != nil {
		return nil, err
	}

	return &Product{
		Name:        f.Name,
		Price:       price,
		Description: f.Description,
		Category:    f.Category,
	}, nil
}

// apply copies the provided fields onto p.
func (f Fields) apply(p *Product) error {
	f = f.trimmed()

	if f.Price != "" {
		price, err := parsePrice(f.Price)
		if err != nil {
			return err
		}
		p.Price = price
	}
	if f.Name != "" {
		p.Name = f.Name
	}
	if f.Description != "" {
		p.Description = f.Description
	}
	if f.Category != "" {
		p.Category = f.Category
	}
	return nil
}

func parsePrice(s string) (float64, error) {
	price, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(price) || math.IsInf(price, 0) || price < 0 {
		return 0, &ValidationError{Message: "price must be a non-negative number", Fields: []string{"price"}}
	}
	return price, nil
}
