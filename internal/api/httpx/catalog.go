package httpx

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/jcmexdev/storefront/internal/catalog"
	"github.com/jcmexdev/storefront/internal/core/domain"
	"github.com/jcmexdev/storefront/internal/core/ports"
)

// maxProductForm leaves room for the form fields around a photo at the
// size limit. Larger photos are refused by validation, not by a cut body.
const maxProductForm = 4 * catalog.MaxPhotoSize

// --- categories ---

func (h *Handler) ListCategories(w http.ResponseWriter, r *http.Request) {
	if withCounts, _ := strconv.ParseBool(r.URL.Query().Get("with_counts")); withCounts {
		cats, err := h.categories.ListWithCounts(r.Context())
		if err != nil {
			writeDomainError(w, r, err)
			return
		}
		out := make([]CategoryResponse, len(cats))
		for i, c := range cats {
			out[i] = mapCategoryWithCount(c)
		}
		writeJSON(w, http.StatusOK, out)
		return
	}

	cats, err := h.categories.List(r.Context())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	out := make([]CategoryResponse, len(cats))
	for i, c := range cats {
		out[i] = mapCategory(c)
	}
	writeJSON(w, http.StatusOK, out)
}

// GetCategory returns the category with the first page of its products.
func (h *Handler) GetCategory(w http.ResponseWriter, r *http.Request) {
	c, err := h.categories.Get(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	page, err := h.products.List(r.Context(), domain.ProductFilter{CategoryID: c.ID})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, CategoryDetailResponse{
		Category: mapCategory(*c),
		Products: mapProducts(page.Products),
	})
}

func (h *Handler) CreateCategory(w http.ResponseWriter, r *http.Request) {
	var req CategoryRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	c, err := h.categories.Create(r.Context(), req.Name)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, mapCategory(*c))
}

func (h *Handler) UpdateCategory(w http.ResponseWriter, r *http.Request) {
	var req CategoryRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	c, err := h.categories.Update(r.Context(), chi.URLParam(r, "id"), req.Name)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapCategory(*c))
}

func (h *Handler) DeleteCategory(w http.ResponseWriter, r *http.Request) {
	if err := h.categories.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- products ---

// ListProducts supports ?category=<id>&q=<keyword>&price_min=&price_max=&page=&limit=.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	f, err := productFilter(r)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	page, err := h.products.List(r.Context(), f)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ProductPageResponse{
		Products: mapProducts(page.Products),
		Total:    page.Total,
		Page:     page.Page,
		Limit:    page.Limit,
	})
}

func (h *Handler) CountProducts(w http.ResponseWriter, r *http.Request) {
	n, err := h.products.Count(r.Context())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, CountResponse{Count: n})
}

func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.products.GetBySlug(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapProduct(*p))
}

func (h *Handler) RelatedProducts(w http.ResponseWriter, r *http.Request) {
	p, err := h.products.GetBySlug(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	related, err := h.products.Related(r.Context(), p.ID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapProducts(related))
}

func (h *Handler) ProductPhoto(w http.ResponseWriter, r *http.Request) {
	rc, contentType, err := h.products.Photo(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, rc)
}

func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	f, photo, err := readProductInput(w, r)
	defer releaseForm(r, photo)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	p, err := h.products.Create(r.Context(), f, photo)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, mapProduct(*p))
}

func (h *Handler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	f, photo, err := readProductInput(w, r)
	defer releaseForm(r, photo)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	p, err := h.products.Update(r.Context(), chi.URLParam(r, "id"), f, photo)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapProduct(*p))
}

func (h *Handler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.products.Delete(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapProduct(*p))
}

func productFilter(r *http.Request) (domain.ProductFilter, error) {
	q := r.URL.Query()
	f := domain.ProductFilter{
		CategoryID: q.Get("category"),
		Keyword:    q.Get("q"),
	}
	var err error
	if f.PriceMin, err = optionalDecimal("price_min", q.Get("price_min")); err != nil {
		return f, err
	}
	if f.PriceMax, err = optionalDecimal("price_max", q.Get("price_max")); err != nil {
		return f, err
	}
	if f.Page, err = queryInt(r, "page", 1); err != nil {
		return f, err
	}
	if f.Limit, err = queryInt(r, "limit", domain.DefaultPageLimit); err != nil {
		return f, err
	}
	return f, nil
}

// readProductInput accepts either a JSON body or a multipart form with an
// optional "photo" file part.
func readProductInput(w http.ResponseWriter, r *http.Request) (domain.ProductFields, *ports.Photo, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		var req ProductRequest
		if err := jsonDecoder(w, r).Decode(&req); err != nil {
			return domain.ProductFields{}, nil, domain.NewValidationError("body", "invalid JSON: "+err.Error())
		}
		f, err := req.fields()
		return f, nil, err
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxProductForm)
	if err := r.ParseMultipartForm(catalog.MaxPhotoSize); err != nil {
		return domain.ProductFields{}, nil, domain.NewValidationError("body", "invalid form: "+err.Error())
	}

	req := ProductRequest{
		Name:        formValue(r, "name"),
		Description: formValue(r, "description"),
		Price:       formValue(r, "price"),
		CategoryID:  formValue(r, "category_id"),
	}
	if raw := formValue(r, "quantity"); raw != nil {
		n, err := strconv.ParseInt(strings.TrimSpace(*raw), 10, 64)
		if err != nil {
			return domain.ProductFields{}, nil, domain.NewValidationError("quantity", "quantity must be a whole number")
		}
		req.Quantity = &n
	}
	if raw := formValue(r, "shipping"); raw != nil {
		b, err := strconv.ParseBool(strings.TrimSpace(*raw))
		if err != nil {
			return domain.ProductFields{}, nil, domain.NewValidationError("shipping", "shipping must be true or false")
		}
		req.Shipping = &b
	}
	f, err := req.fields()
	if err != nil {
		return f, nil, err
	}

	file, header, err := r.FormFile("photo")
	if errors.Is(err, http.ErrMissingFile) {
		return f, nil, nil
	}
	if err != nil {
		return f, nil, domain.NewValidationError("photo", "unreadable photo upload")
	}
	return f, &ports.Photo{
		Name:        header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Body:        file,
	}, nil
}

func releaseForm(r *http.Request, photo *ports.Photo) {
	if photo != nil {
		if c, ok := photo.Body.(io.Closer); ok {
			_ = c.Close()
		}
	}
	if r.MultipartForm != nil {
		_ = r.MultipartForm.RemoveAll()
	}
}

func (req ProductRequest) fields() (domain.ProductFields, error) {
	f := domain.ProductFields{
		Name:        req.Name,
		Description: req.Description,
		Quantity:    req.Quantity,
		CategoryID:  req.CategoryID,
		Shipping:    req.Shipping,
	}
	if req.Price != nil {
		p, err := optionalDecimal("price", *req.Price)
		if err != nil {
			return f, err
		}
		if p == nil {
			return f, domain.NewValidationError("price", "price is required")
		}
		f.Price = p
	}
	return f, nil
}

func formValue(r *http.Request, key string) *string {
	vals, ok := r.MultipartForm.Value[key]
	if !ok || len(vals) == 0 {
		return nil
	}
	v := vals[0]
	return &v
}

func optionalDecimal(field, raw string) (*decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return nil, domain.NewValidationError(field, "must be a decimal number")
	}
	return &d, nil
}
