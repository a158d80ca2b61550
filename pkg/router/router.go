// Package router implements the update router: it tags each incoming
// update by shape and dispatches it to the matching handler, exposing a
// dispatch.Handler so it can be wired directly into the dispatcher's
// worker pool.
package router

import (
	"context"
	"log/slog"

	"github.com/wisbric/paygate/pkg/platformclient"
)

// PreCheckoutHandler answers a pre-checkout query.
type PreCheckoutHandler interface {
	Handle(ctx context.Context, query platformclient.PreCheckoutQuery) error
}

// SuccessfulPaymentHandler processes a confirmed charge.
type SuccessfulPaymentHandler interface {
	Handle(ctx context.Context, msg platformclient.Message) error
}

// Router dispatches an Update to the handler matching its payload.
type Router struct {
	preCheckout       PreCheckoutHandler
	successfulPayment SuccessfulPaymentHandler
	logger            *slog.Logger
}

// New creates a Router.
func New(preCheckout PreCheckoutHandler, successfulPayment SuccessfulPaymentHandler, logger *slog.Logger) *Router {
	return &Router{preCheckout: preCheckout, successfulPayment: successfulPayment, logger: logger}
}

// Route implements dispatch.Handler: it tags update by which payload is
// present and calls the matching handler, logging and no-opping on anything
// this service does not act on.
func (r *Router) Route(ctx context.Context, update platformclient.Update) error {
	switch {
	case update.PreCheckoutQuery != nil:
		return r.preCheckout.Handle(ctx, *update.PreCheckoutQuery)
	case update.Message != nil && update.Message.SuccessfulPayment != nil:
		return r.successfulPayment.Handle(ctx, *update.Message)
	default:
		r.logger.Debug("update ignored, no matching handler", "update_id", update.UpdateID)
		return nil
	}
}
