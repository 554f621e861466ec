package controllers

import (
	"net/http"

	"github.com/angelmondragon/storefront-backend/api/middleware"
	"github.com/angelmondragon/storefront-backend/api/responses"
	"github.com/angelmondragon/storefront-backend/internal/actions"
	checkoutsvc "github.com/angelmondragon/storefront-backend/internal/checkout"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

// CheckoutStart runs the checkout control: stage the whole cart and redirect.
func CheckoutStart(deps CartDeps, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		store, ok := profileCart(w, r, deps, logg)
		if !ok {
			return
		}
		nav := &actions.RecordingNavigator{}
		guard := deps.Sessions.For(store.ProfileID()).Guard(actions.CheckoutControl)
		result, err := deps.Actions.Checkout(r.Context(), guard, store, nav, actions.Callbacks{})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		writeControl(w, guard, result, nav.Path(), nil)
	}
}

// CheckoutExpress stages one product for checkout without touching the cart.
func CheckoutExpress(deps CartDeps, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		profileID := middleware.ProfileIDFromContext(r.Context())
		if profileID == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "profile context missing"))
			return
		}
		req, ok := decodeItemRequest(w, r, deps, logg)
		if !ok {
			return
		}
		nav := &actions.RecordingNavigator{}
		guard := deps.Sessions.For(profileID).Guard(actions.ExpressControl(req.Product.ID))
		result, err := deps.Actions.Express(r.Context(), guard, profileID, nav, req, actions.Callbacks{})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		writeControl(w, guard, result, nav.Path(), nil)
	}
}

// CheckoutView returns the resolved checkout items with totals.
func CheckoutView(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		profileID := middleware.ProfileIDFromContext(r.Context())
		if profileID == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "profile context missing"))
			return
		}
		view, err := svc.View(r.Context(), profileID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}
