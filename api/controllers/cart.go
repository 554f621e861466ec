package controllers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/api/middleware"
	"github.com/angelmondragon/storefront-backend/api/responses"
	"github.com/angelmondragon/storefront-backend/api/validators"
	"github.com/angelmondragon/storefront-backend/internal/actions"
	"github.com/angelmondragon/storefront-backend/internal/cart"
	"github.com/angelmondragon/storefront-backend/internal/catalog"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

// CartRegistry hands out the per-profile cart manager.
type CartRegistry interface {
	Get(ctx context.Context, profileID string) (*cart.Store, error)
}

// ProductLookup resolves the product snapshot a control acts on.
type ProductLookup interface {
	ProductByID(ctx context.Context, id string) (*catalog.ProductDTO, error)
}

// CartDeps bundles the collaborators of the cart and checkout controls.
type CartDeps struct {
	Carts    CartRegistry
	Sessions *actions.Sessions
	Actions  *actions.Handler
	Products ProductLookup
	Currency string
}

type cartResponse struct {
	Items      []cart.Line     `json:"items"`
	ItemsCount int             `json:"itemsCount"`
	Total      decimal.Decimal `json:"total"`
	Currency   string          `json:"currency"`
}

func newCartResponse(store *cart.Store, currency string) *cartResponse {
	lines := store.Lines()
	if lines == nil {
		lines = []cart.Line{}
	}
	return &cartResponse{
		Items:      lines,
		ItemsCount: store.ItemsCount(),
		Total:      store.Total(),
		Currency:   currency,
	}
}

type controlResponse struct {
	Outcome  actions.Outcome `json:"outcome"`
	State    actions.State   `json:"state"`
	Line     *cart.Line      `json:"line,omitempty"`
	Redirect string          `json:"redirect,omitempty"`
	Cart     *cartResponse   `json:"cart,omitempty"`
}

type itemRequest struct {
	ProductID string `json:"productId" validate:"required,max=64"`
	Quantity  int    `json:"quantity" validate:"omitempty,min=1,max=99"`
	Size      string `json:"size" validate:"max=40"`
	Color     string `json:"color" validate:"max=40"`
}

type quantityRequest struct {
	Quantity *int `json:"quantity" validate:"required,min=0,max=99"`
}

// CartFetch returns the profile's cart.
func CartFetch(deps CartDeps, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		store, ok := profileCart(w, r, deps, logg)
		if !ok {
			return
		}
		responses.WriteSuccess(w, newCartResponse(store, deps.Currency))
	}
}

// CartAddItem runs the add-to-cart control for the product.
func CartAddItem(deps CartDeps, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		store, ok := profileCart(w, r, deps, logg)
		if !ok {
			return
		}
		req, ok := decodeItemRequest(w, r, deps, logg)
		if !ok {
			return
		}

		guard := deps.Sessions.For(store.ProfileID()).Guard(actions.AddToCartControl(req.Product.ID))
		result, err := deps.Actions.AddToCart(r.Context(), guard, store, req, actions.Callbacks{})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		writeControl(w, guard, result, "", newCartResponse(store, deps.Currency))
	}
}

// CartBuyNow runs the buy-now control. A product already in the cart sends
// the shopper to checkout; a first add stays on the product page.
func CartBuyNow(deps CartDeps, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		store, ok := profileCart(w, r, deps, logg)
		if !ok {
			return
		}
		req, ok := decodeItemRequest(w, r, deps, logg)
		if !ok {
			return
		}

		nav := &actions.RecordingNavigator{}
		guard := deps.Sessions.For(store.ProfileID()).Guard(actions.BuyNowControl(req.Product.ID))
		result, err := deps.Actions.BuyNow(r.Context(), guard, store, nav, req, actions.Callbacks{})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		writeControl(w, guard, result, nav.Path(), newCartResponse(store, deps.Currency))
	}
}

// CartUpdateItem sets the quantity of a line. Zero removes it.
func CartUpdateItem(deps CartDeps, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		store, ok := profileCart(w, r, deps, logg)
		if !ok {
			return
		}
		id, err := cart.ParseLineToken(chi.URLParam(r, "lineToken"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid line token"))
			return
		}
		var payload quantityRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := store.UpdateQuantity(r.Context(), id, *payload.Quantity); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newCartResponse(store, deps.Currency))
	}
}

func CartRemoveItem(deps CartDeps, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		store, ok := profileCart(w, r, deps, logg)
		if !ok {
			return
		}
		id, err := cart.ParseLineToken(chi.URLParam(r, "lineToken"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid line token"))
			return
		}
		if err := store.RemoveFromCart(r.Context(), id); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newCartResponse(store, deps.Currency))
	}
}

func CartClear(deps CartDeps, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		store, ok := profileCart(w, r, deps, logg)
		if !ok {
			return
		}
		if err := store.ClearCart(r.Context()); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newCartResponse(store, deps.Currency))
	}
}

func profileCart(w http.ResponseWriter, r *http.Request, deps CartDeps, logg *logger.Logger) (*cart.Store, bool) {
	profileID := middleware.ProfileIDFromContext(r.Context())
	if profileID == "" {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "profile context missing"))
		return nil, false
	}
	if deps.Carts == nil {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart service unavailable"))
		return nil, false
	}
	store, err := deps.Carts.Get(r.Context(), profileID)
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return nil, false
	}
	return store, true
}

// decodeItemRequest reads the click payload and resolves the product so the
// line carries the catalog's title, price and images.
func decodeItemRequest(w http.ResponseWriter, r *http.Request, deps CartDeps, logg *logger.Logger) (actions.Request, bool) {
	var payload itemRequest
	if err := validators.DecodeJSONBody(r, &payload); err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return actions.Request{}, false
	}
	product, err := deps.Products.ProductByID(r.Context(), payload.ProductID)
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return actions.Request{}, false
	}
	size := validators.SanitizeString(payload.Size, 40)
	color := validators.SanitizeString(payload.Color, 40)
	if !product.HasSize(size) || !product.HasColor(color) {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "variant not offered").
			WithDetails(map[string]any{"size": size, "color": color}))
		return actions.Request{}, false
	}

	snapshot := product.CartProduct()
	return actions.Request{
		Product: &snapshot,
		Options: cart.AddOptions{Quantity: payload.Quantity, Size: size, Color: color},
	}, true
}

func writeControl(w http.ResponseWriter, guard *actions.Guard, result actions.Result, redirect string, body *cartResponse) {
	resp := controlResponse{
		Outcome: result.Outcome,
		State:   guard.State(),
		Line:    result.Line,
		Cart:    body,
	}
	if result.Navigated {
		resp.Redirect = redirect
	}
	status := http.StatusOK
	if result.Outcome == actions.OutcomeIgnored {
		status = http.StatusAccepted
	}
	responses.WriteSuccessStatus(w, status, resp)
}
