// Package image serves product images out of the bucket.
package image

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/storefront/service/internal/response"
	"github.com/storefront/service/internal/storage"
)

// cacheControl lets browsers and CDNs keep an image for one day.
const cacheControl = "public, max-age=86400"

// Store is the bucket surface the image routes need.
type Store interface {
	Authorize(ctx context.Context) (storage.Session, error)
	Download(ctx context.Context, name string) (*storage.Object, error)
}

// Handler holds HTTP handlers for image endpoints.
type Handler struct {
	store Store
}

// NewHandler creates a new image Handler.
func NewHandler(store Store) *Handler {
	return &Handler{store: store}
}

// Serve godoc
//
//	@Summary		Get product image
//	@Description	Streams an image from the bucket. Responses are publicly cacheable for one day.
//	@Tags			images
//	@Produce		image/png,image/jpeg,image/webp,application/octet-stream
//	@Param			filename	path	string	true	"Object name, e.g. 1700000000000-lamp.png"
//	@Success		200
//	@Failure		400	{object}	response.Envelope
//	@Failure		404	{object}	response.Envelope
//	@Failure		500	{object}	response.Envelope
//	@Router			/images/{filename} [get]
func (h *Handler) Serve(w http.ResponseWriter, r *http.Request) {
	filename, ok := objectName(r)
	if !ok {
		response.BadRequest(w, "invalid filename")
		return
	}

	logger := log.Ctx(r.Context()).With().Str("component", "image").Str("filename", filename).Logger()

	obj, err := h.store.Download(r.Context(), filename)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			logger.Warn().Msg("image not found")
			response.NotFound(w, "image not found")
			return
		}
		logger.Error().Err(err).Msg("failed to serve image")
		response.Error(w, http.StatusInternalServerError, "failed to serve image")
		return
	}
	defer obj.Body.Close()

	contentType := obj.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	if obj.Size >= 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(obj.Size, 10))
	}
	w.Header().Set("Cache-Control", cacheControl)
	w.WriteHeader(http.StatusOK)

	// Headers are committed; a broken stream can only be logged.
	if _, err := io.Copy(w, obj.Body); err != nil {
		logger.Error().Err(err).Msg("image stream interrupted")
	}
}

// CheckBucket runs the bucket authorization handshake and reports the cached session.
// It is mounted at /test-b2, outside the documented /api base path.
func (h *Handler) CheckBucket(w http.ResponseWriter, r *http.Request) {
	s, err := h.store.Authorize(r.Context())
	switch {
	case errors.Is(err, storage.ErrConfiguration):
		response.Error(w, http.StatusInternalServerError, err.Error())
	case errors.Is(err, storage.ErrAuth):
		response.BadGateway(w, err.Error())
	case err != nil:
		response.InternalError(w)
	default:
		response.OK(w, s)
	}
}

// objectName returns the decoded filename route parameter. chi matches on the escaped path
// whenever the request carries one (names with ',' or ';' for instance), in which case the
// parameter is still percent-encoded.
func objectName(r *http.Request) (string, bool) {
	name := chi.URLParam(r, "filename")
	if r.URL.RawPath != "" {
		decoded, err := url.PathUnescape(name)
		if err != nil {
			return "", false
		}
		name = decoded
	}
	if name == "" || strings.Contains(name, "/") {
		return "", false
	}
	return name, true
}
