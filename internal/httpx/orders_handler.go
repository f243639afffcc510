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

const HeaderIdempotencyKey = "Idempotency-Key"

type OrdersHandler struct {
	Orders *orders.Manager
	Cache  *redisx.Cache // optional
	Log    *zap.Logger
}

func (h *OrdersHandler) Register(r chi.Router) {
	r.Post("/orders", h.createOrder)
	r.Get("/orders", h.listOrders)
	r.Get("/orders/{id}", h.getOrder)
	r.Put("/orders/{id}", h.updateOrder)
	r.Delete("/orders/{id}", h.deleteOrder)
}

func (h *OrdersHandler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderReq
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

	// Claimed with SETNX so concurrent retries cannot both create.
	idemKey := strings.TrimSpace(r.Header.Get(HeaderIdempotencyKey))
	claimed := false
	if idemKey != "" && h.Cache != nil {
		state, orderID := h.Cache.ClaimOrderKey(ctx, idemKey)
		switch state {
		case redisx.ClaimAcquired:
			claimed = true
		case redisx.ClaimInFlight:
			writeJSON(w, http.StatusConflict, map[string]string{"error": "a request with this idempotency key is in progress"})
			return
		case redisx.ClaimDone:
			o, err := h.Orders.Get(ctx, orderID)
			if err != nil {
				writeError(w, h.Log, err)
				return
			}
			w.Header().Set("Idempotent-Replayed", "true")
			writeJSON(w, http.StatusOK, toOrderResp(o))
			return
		}
	}

	o, err := h.Orders.Create(ctx, strings.TrimSpace(req.Customer), req.Items)
	if err != nil {
		if claimed {
			h.Cache.AbandonOrderKey(context.WithoutCancel(ctx), idemKey)
		}
		writeError(w, h.Log, err)
		return
	}
	if claimed {
		h.Cache.CompleteOrderKey(context.WithoutCancel(ctx), idemKey, o.ID)
	}
	writeJSON(w, http.StatusCreated, toOrderResp(o))
}

func (h *OrdersHandler) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	list, err := h.Orders.List(ctx)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	out := make([]OrderResp, 0, len(list))
	for _, o := range list {
		out = append(out, toOrderResp(o))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	var (
		o   orders.Order
		err error
	)
	if h.Cache != nil {
		o, err = h.Cache.Order(ctx, orderID, func(ctx context.Context) (orders.Order, error) {
			return h.Orders.Get(ctx, orderID)
		})
	} else {
		o, err = h.Orders.Get(ctx, orderID)
	}
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResp(o))
}

func (h *OrdersHandler) updateOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	var req UpdateOrderReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid json")
		return
	}
	if err := req.validate(); err != nil {
		badRequest(w, err.Error())
		return
	}
	if req.Customer != nil {
		c := strings.TrimSpace(*req.Customer)
		req.Customer = &c
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	o, err := h.Orders.Update(ctx, orderID, orders.UpdateInput{Customer: req.Customer, Items: req.Items})
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResp(o))
}

func (h *OrdersHandler) deleteOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if _, err := h.Orders.Delete(ctx, orderID); err != nil {
		writeError(w, h.Log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
