// Package handler exposes the order service over HTTP.
package handler

import (
	"context"
	"net/http"

	"github.com/go-faster/jx"

	"github.com/xenking/order-reconciler/internal/domain/order"
)

// DefaultMaxBodyBytes limits the size of an order submission.
const DefaultMaxBodyBytes = 1 << 20

// OrderService is the order use-case surface the handlers depend on.
type OrderService interface {
	Create(ctx context.Context, p order.Payload) (*order.Order, error)
	List(ctx context.Context) ([]order.View, error)
}

// Handler serves the /orders resource.
type Handler struct {
	orders       OrderService
	maxBodyBytes int64
}

// NewHandler constructs a Handler. A non-positive maxBodyBytes selects
// DefaultMaxBodyBytes.
func NewHandler(orders OrderService, maxBodyBytes int64) *Handler {
	if maxBodyBytes <= 0 {
		maxBodyBytes = DefaultMaxBodyBytes
	}
	return &Handler{
		orders:       orders,
		maxBodyBytes: maxBodyBytes,
	}
}

// Register mounts the order routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	for _, path := range []string{"/orders", "/orders/"} {
		mux.HandleFunc("GET "+path, h.ListOrders)
		mux.HandleFunc("POST "+path, h.CreateOrder)
	}
}

func writeJSON(w http.ResponseWriter, status int, encode func(e *jx.Encoder)) {
	var e jx.Encoder
	encode(&e)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("error", func(e *jx.Encoder) { e.Str(msg) })
		})
	})
}

func writeValidation(w http.ResponseWriter, verr *order.ValidationError) {
	writeJSON(w, http.StatusBadRequest, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("errors", func(e *jx.Encoder) {
				e.Obj(func(e *jx.Encoder) {
					e.Field(verr.Field, func(e *jx.Encoder) { e.Str(verr.Message) })
				})
			})
			e.Field("code", func(e *jx.Encoder) { e.Str(string(verr.Code)) })
		})
	})
}
