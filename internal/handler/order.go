package handler

import (
	"io"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/order-reconciler/internal/domain/order"
)

// ListOrders answers GET /orders with every order view, newest first.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	views, err := h.orders.List(r.Context())
	if err != nil {
		zctx.From(r.Context()).Error("List orders", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("orders", func(e *jx.Encoder) {
				e.Arr(func(e *jx.Encoder) {
					for _, v := range views {
						v.Encode(e)
					}
				})
			})
		})
	})
}

// CreateOrder answers POST /orders: 201 with the reconciled order, 400 with
// field errors for invalid submissions and 500 once retries are exhausted.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	lg := zctx.From(ctx)

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		writeValidation(w, &order.ValidationError{
			Field:   order.FieldPayload,
			Code:    order.CodeMalformedPayload,
			Message: "could not read request body",
		})
		return
	}

	payload, err := order.DecodePayload(body)
	if err != nil {
		if verr, ok := order.AsValidation(err); ok {
			writeValidation(w, verr)
			return
		}
		lg.Error("Decode order payload", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	o, err := h.orders.Create(ctx, payload)
	if err != nil {
		if verr, ok := order.AsValidation(err); ok {
			lg.Info("Order rejected",
				zap.String("field", verr.Field),
				zap.String("code", string(verr.Code)),
				zap.String("reason", verr.Message),
			)
			writeValidation(w, verr)
			return
		}
		lg.Error("Create order", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "order could not be processed")
		return
	}

	view := order.Present(*o)
	lg.Info("Order reconciled",
		zap.Int64("order_id", view.ID),
		zap.Int("lines", len(view.Items)),
	)
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("order", view.Encode)
		})
	})
}
