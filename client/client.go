// Package client is a Go client for the storefront API: product calls with a bearer token,
// image fetches through the proxy route, and an in-memory shopping cart.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Product mirrors the API's product record.
type Product struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Price        float64   `json:"price"`
	Description  string    `json:"description"`
	Category     string    `json:"category"`
	ImageURL     string    `json:"imageUrl"`
	ImageKey     string    `json:"imageKey,omitempty"`
	ImageStorage string    `json:"imageStorage,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// ProductInput is the body of a create or update call. Nil fields are omitted, which on
// update leaves the stored value unchanged.
type ProductInput struct {
	Name        *string
	Price       *float64
	Description *string
	Category    *string
	Image       *ImageFile
}

// ImageFile is an image attached to a create or update call.
type ImageFile struct {
	Filename    string
	ContentType string
	Body        io.Reader
}

// Image is a fetched image. Callers must close Body.
type Image struct {
	StatusCode    int
	Body          io.ReadCloser
	ContentType   string
	ContentLength int64
	CacheControl  string
}

// APIError is returned for any non-2xx API response.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Message)
}

// IsNotFound reports whether err is an APIError with status 404.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// TokenSource returns the bearer token for a write call.
type TokenSource func(ctx context.Context) (string, error)

// StaticToken returns a TokenSource that always yields token.
func StaticToken(token string) TokenSource {
	return func(context.Context) (string, error) { return token, nil }
}

// Client calls the storefront API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	token      TokenSource
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithToken sets the token source used by write calls.
func WithToken(ts TokenSource) Option {
	return func(c *Client) { c.token = ts }
}

// New creates a Client for the API rooted at baseURL, e.g. http://localhost:3000.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Error   string          `json:"error"`
	Details string          `json:"details"`
}

// ListProducts returns every product, newest first.
func (c *Client) ListProducts(ctx context.Context) ([]Product, error) {
	var products []Product
	if err := c.do(ctx, http.MethodGet, "/api/products", nil, "", false, &products); err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	return products, nil
}

// GetProduct returns a single product.
func (c *Client) GetProduct(ctx context.Context, id string) (*Product, error) {
	var p Product
	if err := c.do(ctx, http.MethodGet, "/api/products/"+url.PathEscape(id), nil, "", false, &p); err != nil {
		return nil, fmt.Errorf("get product %s: %w", id, err)
	}
	return &p, nil
}

// CreateProduct creates a product. Every field and the image are required by the API.
func (c *Client) CreateProduct(ctx context.Context, in ProductInput) (*Product, error) {
	body, contentType, err := encodeProduct(in)
	if err != nil {
		return nil, fmt.Errorf("create product: %w", err)
	}

	var p Product
	if err := c.do(ctx, http.MethodPost, "/api/products", body, contentType, true, &p); err != nil {
		return nil, fmt.Errorf("create product: %w", err)
	}
	return &p, nil
}

// UpdateProduct applies the non-nil fields of in to the product.
func (c *Client) UpdateProduct(ctx context.Context, id string, in ProductInput) (*Product, error) {
	body, contentType, err := encodeProduct(in)
	if err != nil {
		return nil, fmt.Errorf("update product %s: %w", id, err)
	}

	var p Product
	if err := c.do(ctx, http.MethodPut, "/api/products/"+url.PathEscape(id), body, contentType, true, &p); err != nil {
		return nil, fmt.Errorf("update product %s: %w", id, err)
	}
	return &p, nil
}

// DeleteProduct deletes the product.
func (c *Client) DeleteProduct(ctx context.Context, id string) error {
	if err := c.do(ctx, http.MethodDelete, "/api/products/"+url.PathEscape(id), nil, "", true, nil); err != nil {
		return fmt.Errorf("delete product %s: %w", id, err)
	}
	return nil
}

// FetchImage downloads an image by absolute URL or by a path relative to the API root.
func (c *Client) FetchImage(ctx context.Context, imageURL string) (*Image, error) {
	target := imageURL
	if !strings.HasPrefix(target, "http://") && !strings.HasPrefix(target, "https://") {
		target = c.baseURL + "/" + strings.TrimLeft(target, "/")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch image: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch image: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		return nil, fmt.Errorf("fetch image: %w", decodeError(resp))
	}

	return &Image{
		StatusCode:    resp.StatusCode,
		Body:          resp.Body,
		ContentType:   resp.Header.Get("Content-Type"),
		ContentLength: resp.ContentLength,
		CacheControl:  resp.Header.Get("Cache-Control"),
	}, nil
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string, authed bool, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if authed && c.token != nil {
		token, err := c.token(ctx)
		if err != nil {
			return fmt.Errorf("get token: %w", err)
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decode data: %w", err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil || len(raw) == 0 {
		return apiErr
	}
	var env envelope
	if json.Unmarshal(raw, &env) == nil && env.Error != "" {
		apiErr.Message = env.Error
		if env.Details != "" {
			apiErr.Message += ": " + env.Details
		}
		return apiErr
	}
	apiErr.Message = strings.TrimSpace(string(raw))
	return apiErr
}

func encodeProduct(in ProductInput) (io.Reader, string, error) {
	buf := &bytes.Buffer{}
	mw := multipart.NewWriter(buf)

	fields := []struct {
		name  string
		value *string
	}{
		{"name", in.Name},
		{"description", in.Description},
		{"category", in.Category},
	}
	for _, f := range fields {
		if f.value == nil {
			continue
		}
		if err := mw.WriteField(f.name, *f.value); err != nil {
			return nil, "", err
		}
	}
	if in.Price != nil {
		if err := mw.WriteField("price", strconv.FormatFloat(*in.Price, 'f', -1, 64)); err != nil {
			return nil, "", err
		}
	}

	if in.Image != nil {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="image"; filename=%q`, in.Image.Filename))
		if in.Image.ContentType != "" {
			h.Set("Content-Type", in.Image.ContentType)
		}
		part, err := mw.CreatePart(h)
		if err != nil {
			return nil, "", err
		}
		if _, err := io.Copy(part, in.Image.Body); err != nil {
			return nil, "", fmt.Errorf("read image: %w", err)
		}
	}

	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return buf, mw.FormDataContentType(), nil
}
