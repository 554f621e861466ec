package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/storefront-backend/api/controllers"
	"github.com/angelmondragon/storefront-backend/api/middleware"
	"github.com/angelmondragon/storefront-backend/internal/catalog"
	checkoutsvc "github.com/angelmondragon/storefront-backend/internal/checkout"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	"github.com/angelmondragon/storefront-backend/pkg/redis"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	pingers map[string]controllers.Pinger,
	redisClient *redis.Client,
	gatherer prometheus.Gatherer,
	httpMetrics *metrics.HTTPMetrics,
	catalogService catalog.Service,
	cartDeps controllers.CartDeps,
	checkoutService checkoutsvc.Service,
	ordersService orders.Service,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.Metrics(httpMetrics),
		middleware.CORS(cfg.CORS.AllowedOrigins),
	)

	// the memory storage backend runs without redis
	var (
		idempotencyStore redis.IdempotencyStore
		limiterStore     middleware.RateLimiterStore
	)
	if redisClient != nil {
		idempotencyStore = redisClient
		limiterStore = redisClient
	}

	orderPolicy := middleware.NewRateLimitPolicy(
		"orders",
		cfg.RateLimit.OrderWindow,
		cfg.RateLimit.OrderIPLimit,
		cfg.RateLimit.OrderProfileLimit,
	)
	reviewPolicy := middleware.NewRateLimitPolicy(
		"reviews",
		cfg.RateLimit.ReviewWindow,
		cfg.RateLimit.ReviewIPLimit,
		cfg.RateLimit.ReviewProfileLimit,
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, pingers))
	})
	if gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	// idempotency is attached per route so chi has resolved the full pattern
	idempotent := middleware.Idempotency(idempotencyStore, logg)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/products", func(r chi.Router) {
			r.Get("/", controllers.ProductList(catalogService, logg))
			r.Get("/{productId}", controllers.ProductDetail(catalogService, logg))
			r.Get("/{productId}/reviews", controllers.ProductReviews(catalogService, logg))
			r.With(middleware.RateLimit(reviewPolicy, limiterStore, logg), idempotent).
				Post("/{productId}/reviews", controllers.ProductReviewCreate(catalogService, logg))
		})

		r.Get("/orders/track/{trackingId}", controllers.OrderTrack(ordersService, logg))

		r.Group(func(r chi.Router) {
			r.Use(middleware.Profile(logg))

			r.Route("/cart", func(r chi.Router) {
				r.Get("/", controllers.CartFetch(cartDeps, logg))
				r.Delete("/", controllers.CartClear(cartDeps, logg))
				r.Post("/items", controllers.CartAddItem(cartDeps, logg))
				r.Patch("/items/{lineToken}", controllers.CartUpdateItem(cartDeps, logg))
				r.Delete("/items/{lineToken}", controllers.CartRemoveItem(cartDeps, logg))
				r.Post("/buy-now", controllers.CartBuyNow(cartDeps, logg))
			})

			r.Route("/checkout", func(r chi.Router) {
				r.Get("/", controllers.CheckoutView(checkoutService, logg))
				r.Post("/start", controllers.CheckoutStart(cartDeps, logg))
				r.Post("/express", controllers.CheckoutExpress(cartDeps, logg))
			})

			r.With(middleware.RateLimit(orderPolicy, limiterStore, logg), idempotent).
				Post("/orders", controllers.OrderSubmit(ordersService, logg))
		})
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireRole(logg, enums.StaffRoleAdmin))

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", controllers.AdminOrderList(ordersService, logg))
			r.With(idempotent).Patch("/{trackingId}/status", controllers.AdminOrderStatus(ordersService, logg))
		})
	})

	return r
}
