package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/ariefcatur/go-stock-orders/internal/orders"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, map[string]string{"error": msg})
}

// writeError maps core errors onto status codes.
func writeError(w http.ResponseWriter, log *zap.Logger, err error) {
	var (
		nf *orders.NotFoundError
		is *orders.InsufficientStockError
		tf *orders.TxFailureError
	)
	switch {
	case errors.As(err, &nf):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error(), "kind": nf.Kind, "id": nf.ID})
	case errors.As(err, &is):
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":      "insufficient stock",
			"product_id": is.ProductID,
			"available":  is.Available,
			"requested":  is.Requested,
		})
	case errors.Is(err, orders.ErrProductInUse):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	case errors.Is(err, orders.ErrEmptyOrder), errors.Is(err, orders.ErrInvalidQuantity),
		errors.Is(err, orders.ErrInvalidPrice), errors.Is(err, orders.ErrAmountTooLarge):
		badRequest(w, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		writeJSON(w, http.StatusGatewayTimeout, map[string]string{"error": "timeout"})
	case errors.As(err, &tf):
		log.Error("transaction failed", zap.String("op", tf.Op), zap.Error(tf.Err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"error": "transaction failed", "retryable": tf.Retryable()})
	default:
		log.Error("unhandled error", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}
