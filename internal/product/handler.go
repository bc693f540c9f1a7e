package product

import (
	"errors"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/storefront/service/internal/response"
	"github.com/storefront/service/internal/storage"
)

const (
	formMemory   = 8 << 20
	imageField   = "image"
	fallbackType = "application/octet-stream"
)

// Handler holds HTTP handlers for product endpoints.
type Handler struct {
	svc            *Service
	maxUploadBytes int64
}

// NewHandler creates a new product Handler. Request bodies larger than maxUploadBytes
// are rejected.
func NewHandler(svc *Service, maxUploadBytes int64) *Handler {
	return &Handler{svc: svc, maxUploadBytes: maxUploadBytes}
}

// List godoc
//
//	@Summary		List products
//	@Description	Returns every product, newest first. imageUrl is rooted at the requesting host.
//	@Tags			products
//	@Produce		json
//	@Success		200	{object}	response.Envelope{data=[]Product}
//	@Failure		500	{object}	response.Envelope
//	@Router			/products [get]
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	products, err := h.svc.List(r.Context())
	if err != nil {
		log.Ctx(r.Context()).Error().Err(err).Str("component", "product").Msg("failed to list products")
		response.InternalError(w)
		return
	}

	base := requestBase(r)
	for i := range products {
		present(&products[i], base)
	}
	response.OK(w, products)
}

// Get godoc
//
//	@Summary		Get product
//	@Tags			products
//	@Produce		json
//	@Param			id	path		string	true	"Product ID"
//	@Success		200	{object}	response.Envelope{data=Product}
//	@Failure		404	{object}	response.Envelope
//	@Failure		500	{object}	response.Envelope
//	@Router			/products/{id} [get]
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	p, err := h.svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	present(p, requestBase(r))
	response.OK(w, p)
}

// Create godoc
//
//	@Summary		Create product
//	@Description	Uploads the image to the bucket and stores the product. Admin only.
//	@Tags			products
//	@Accept			multipart/form-data
//	@Produce		json
//	@Security		BearerAuth
//	@Param			name		formData	string	true	"Name"
//	@Param			price		formData	number	true	"Price"
//	@Param			description	formData	string	true	"Description"
//	@Param			category	formData	string	true	"Category"
//	@Param			image		formData	file	true	"Product image"
//	@Success		201	{object}	response.Envelope{data=Product}
//	@Failure		400	{object}	response.Envelope
//	@Failure		401	{object}	response.Envelope
//	@Failure		403	{object}	response.Envelope
//	@Failure		500	{object}	response.Envelope
//	@Router			/products [post]
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	fields, img, cleanup, ok := h.parseForm(w, r)
	if !ok {
		return
	}
	defer cleanup()

	p, err := h.svc.Create(r.Context(), fields, img)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	present(p, requestBase(r))
	response.Created(w, p)
}

// Update godoc
//
//	@Summary		Update product
//	@Description	Applies the provided fields. An attached image replaces the current one. Admin only.
//	@Tags			products
//	@Accept			multipart/form-data
//	@Produce		json
//	@Security		BearerAuth
//	@Param			id			path		string	true	"Product ID"
//	@Param			name		formData	string	false	"Name"
//	@Param			price		formData	number	false	"Price"
//	@Param			description	formData	string	false	"Description"
//	@Param			category	formData	string	false	"Category"
//	@Param			image		formData	file	false	"Replacement image"
//	@Success		200	{object}	response.Envelope{data=Product}
//	@Failure		400	{object}	response.Envelope
//	@Failure		401	{object}	response.Envelope
//	@Failure		403	{object}	response.Envelope
//	@Failure		404	{object}	response.Envelope
//	@Failure		500	{object}	response.Envelope
//	@Router			/products/{id} [put]
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	fields, img, cleanup, ok := h.parseForm(w, r)
	if !ok {
		return
	}
	defer cleanup()

	p, err := h.svc.Update(r.Context(), chi.URLParam(r, "id"), fields, img)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	present(p, requestBase(r))
	response.OK(w, p)
}

// Delete godoc
//
//	@Summary		Delete product
//	@Description	Deletes the product. Image removal is best-effort. Admin only.
//	@Tags			products
//	@Produce		json
//	@Security		BearerAuth
//	@Param			id	path		string	true	"Product ID"
//	@Success		200	{object}	response.Envelope
//	@Failure		401	{object}	response.Envelope
//	@Failure		403	{object}	response.Envelope
//	@Failure		404	{object}	response.Envelope
//	@Failure		500	{object}	response.Envelope
//	@Router			/products/{id} [delete]
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeError(w, r, err)
		return
	}
	response.Message(w, "product deleted")
}

// parseForm reads the text fields and the optional image of a create or update request.
// It writes the error response itself and reports ok=false when the form is unusable.
func (h *Handler) parseForm(w http.ResponseWriter, r *http.Request) (Fields, *Image, func(), bool) {
	cleanup := func() {}
	if h.maxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	}

	err := r.ParseMultipartForm(formMemory)
	if errors.Is(err, http.ErrNotMultipart) {
		err = r.ParseForm()
	}
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.BadRequest(w, "request body too large")
		} else {
			response.BadRequest(w, "invalid form data")
		}
		return Fields{}, nil, cleanup, false
	}
	if r.MultipartForm != nil {
		cleanup = func() { _ = r.MultipartForm.RemoveAll() }
	}

	fields := Fields{
		Name:        r.FormValue("name"),
		Price:       r.FormValue("price"),
		Description: r.FormValue("description"),
		Category:    r.FormValue("category"),
	}

	if r.MultipartForm == nil {
		return fields, nil, cleanup, true
	}
	file, header, err := r.FormFile(imageField)
	if errors.Is(err, http.ErrMissingFile) {
		return fields, nil, cleanup, true
	}
	if err != nil {
		cleanup()
		response.BadRequest(w, "invalid image upload")
		return Fields{}, nil, func() {}, false
	}

	prev := cleanup
	cleanup = func() {
		_ = file.Close()
		prev()
	}
	return fields, &Image{
		Filename:    header.Filename,
		ContentType: contentTypeOf(header),
		Size:        header.Size,
		Body:        file,
	}, cleanup, true
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		response.BadRequest(w, verr.Error())
	case errors.Is(err, ErrNotFound):
		response.NotFound(w, "product not found")
	case errors.Is(err, storage.ErrUpload),
		errors.Is(err, storage.ErrConfiguration),
		errors.Is(err, storage.ErrAuth):
		log.Ctx(r.Context()).Error().Err(err).Str("component", "product").Msg("image upload failed")
		response.ErrorDetails(w, http.StatusInternalServerError, "failed to upload image", err.Error())
	default:
		log.Ctx(r.Context()).Error().Err(err).Str("component", "product").Msg("request failed")
		response.InternalError(w)
	}
}

func contentTypeOf(header *multipart.FileHeader) string {
	if ct := header.Header.Get("Content-Type"); ct != "" {
		return ct
	}
	if ct := mime.TypeByExtension(strings.ToLower(filepath.Ext(header.Filename))); ct != "" {
		return ct
	}
	return fallbackType
}

// requestBase returns scheme://host of the request as seen by the client.
func requestBase(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := firstHeaderValue(r.Header.Get("X-Forwarded-Proto")); proto != "" {
		scheme = proto
	}
	host := r.Host
	if fwd := firstHeaderValue(r.Header.Get("X-Forwarded-Host")); fwd != "" {
		host = fwd
	}
	return scheme + "://" + host
}

func firstHeaderValue(v string) string {
	if i := strings.IndexByte(v, ','); i >= 0 {
		v = v[:i]
	}
	return strings.TrimSpace(v)
}

// present rewrites the image URL of p to the proxy route under base.
func present(p *Product, base string) {
	key := p.ObjectKey()
	if key == "" {
		return
	}
	p.ImageURL = base + storage.ProxyRoute + url.PathEscape(key)
}
