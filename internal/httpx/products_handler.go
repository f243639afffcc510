package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-stock-orders/internal/orders"
	"github.com/ariefcatur/go-stock-orders/internal/redisx"
)

type ProductsHandler struct {
	Catalog *orders.Catalog
	Cache   *redisx.Cache // optional
	Log     *zap.Logger
}

func (h *ProductsHandler) Register(r chi.Router) {
	r.Post("/products", h.create)
	r.Get("/products", h.list)
	r.Get("/products/{id}", h.get)
	r.Put("/products/{id}", h.update)
	r.Delete("/products/{id}", h.delete)
}

func (h *ProductsHandler) create(w http.ResponseWriter, r *http.Request) {
	var req CreateProductReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid json")
		return
	}
	if err := req.validate(); err != nil {
		badRequest(w, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	p, err := h.Catalog.Create(ctx, orders.Product{
		Name:          strings.TrimSpace(req.Name),
		Description:   req.Description,
		PriceCents:    toCents(req.Price),
		StockQuantity: req.StockQuantity,
	})
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusCreated, toProductResp(p))
}

func (h *ProductsHandler) list(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	ps, err := h.Catalog.List(ctx)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	out := make([]ProductResp, 0, len(ps))
	for _, p := range ps {
		out = append(out, toProductResp(p))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *ProductsHandler) get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	var (
		p   orders.Product
		err error
	)
	if h.Cache != nil {
		p, err = h.Cache.Product(ctx, id, func(ctx context.Context) (orders.Product, error) {
			return h.Catalog.Get(ctx, id)
		})
	} else {
		p, err = h.Catalog.Get(ctx, id)
	}
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, toProductResp(p))
}

func (h *ProductsHandler) update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req UpdateProductReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid json")
		return
	}
	if err := req.validate(); err != nil {
		badRequest(w, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	patch := orders.ProductPatch{Description: req.Description, StockQuantity: req.StockQuantity}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		patch.Name = &name
	}
	if req.Price != nil {
		cents := toCents(*req.Price)
		patch.PriceCents = &cents
	}
	p, err := h.Catalog.Update(ctx, id, patch)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	if h.Cache != nil {
		h.Cache.InvalidateProducts(ctx, id)
	}
	writeJSON(w, http.StatusOK, toProductResp(p))
}

func (h *ProductsHandler) delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := h.Catalog.Delete(ctx, id); err != nil {
		writeError(w, h.Log, err)
		return
	}
	if h.Cache != nil {
		h.Cache.InvalidateProducts(ctx, id)
	}
	w.WriteHeader(http.StatusNoContent)
}
