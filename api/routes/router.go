package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/bloomcart/bloomcart-backend/api/controllers"
	"github.com/bloomcart/bloomcart-backend/api/middleware"
	"github.com/bloomcart/bloomcart-backend/internal/cart"
	"github.com/bloomcart/bloomcart-backend/internal/catalog"
	"github.com/bloomcart/bloomcart-backend/internal/checkout"
	"github.com/bloomcart/bloomcart-backend/internal/inventory"
	"github.com/bloomcart/bloomcart-backend/internal/notifications"
	"github.com/bloomcart/bloomcart-backend/internal/orders"
	"github.com/bloomcart/bloomcart-backend/internal/payments"
	"github.com/bloomcart/bloomcart-backend/internal/ratings"
	"github.com/bloomcart/bloomcart-backend/internal/shipping"
	"github.com/bloomcart/bloomcart-backend/internal/users"
	"github.com/bloomcart/bloomcart-backend/pkg/config"
	"github.com/bloomcart/bloomcart-backend/pkg/db"
	"github.com/bloomcart/bloomcart-backend/pkg/enums"
	"github.com/bloomcart/bloomcart-backend/pkg/logger"
	"github.com/bloomcart/bloomcart-backend/pkg/redis"
)

// Dependencies carries everything the HTTP surface needs.
type Dependencies struct {
	Config        *config.Config
	Logger        *logger.Logger
	Database      db.Pinger
	Cache         redis.Pinger
	Users         users.Service
	Catalog       catalog.Service
	Cart          cart.Service
	Checkout      checkout.Service
	Orders        orders.Service
	Inventory     inventory.Service
	Ratings       ratings.Service
	Shipping      shipping.Service
	Notifications notifications.Service
	Callbacks     *payments.CallbackService
}

// New assembles the router: public storefront routes, gateway callbacks, the
// authenticated customer surface and the role-guarded back office.
func New(deps Dependencies) http.Handler {
	cfg := deps.Config
	logg := deps.Logger

	r := chi.NewRouter()
	r.Use(middleware.Recoverer(logg))
	r.Use(middleware.RequestID(logg))
	r.Use(middleware.Logging(logg))
	r.Use(middleware.CORS(cfg.App.CORSOrigins))

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps.Database, deps.Cache))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", controllers.AuthRegister(deps.Users, logg))
			r.Post("/login", controllers.AuthLogin(deps.Users, logg))
		})

		r.Route("/products", func(r chi.Router) {
			r.Get("/", controllers.ListProducts(deps.Catalog, logg))
			r.Get("/{productId}", controllers.GetProduct(deps.Catalog, logg))
			r.Get("/{productId}/ratings", controllers.ListProductRatings(deps.Ratings, logg))
			r.With(middleware.Auth(cfg.JWT, logg)).
				Post("/{productId}/ratings", controllers.RateProduct(deps.Ratings, logg))
		})
		r.Get("/categories", controllers.ListCategories(deps.Catalog, logg))

		r.Route("/shipping", func(r chi.Router) {
			r.Get("/provinces", controllers.ListProvinces(deps.Shipping, logg))
			r.Get("/districts", controllers.ListDistricts(deps.Shipping, logg))
			r.Get("/wards", controllers.ListWards(deps.Shipping, logg))
			r.Post("/quote", controllers.QuoteShipping(deps.Shipping, logg))
		})

		// Gateways call back unauthenticated; the signature is the credential.
		r.Route("/payments", func(r chi.Router) {
			momo := controllers.PaymentCallback(deps.Callbacks, enums.PaymentMethodMomo, logg)
			vnpay := controllers.PaymentCallback(deps.Callbacks, enums.PaymentMethodVNPay, logg)
			r.Get("/momo/callback", momo)
			r.Post("/momo/callback", momo)
			r.Get("/vnpay/callback", vnpay)
			r.Post("/vnpay/callback", vnpay)
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWT, logg))

			r.Route("/profile", func(r chi.Router) {
				r.Get("/", controllers.Profile(deps.Users, logg))
				r.Put("/", controllers.UpdateProfile(deps.Users, logg))
			})

			r.Route("/cart", func(r chi.Router) {
				r.Get("/", controllers.CartFetch(deps.Cart, logg))
				r.Post("/items", controllers.CartAddItem(deps.Cart, logg))
				r.Put("/items/{productId}", controllers.CartUpdateItem(deps.Cart, logg))
				r.Delete("/items/{productId}", controllers.CartRemoveItem(deps.Cart, logg))
				r.Delete("/", controllers.CartClear(deps.Cart, logg))
			})

			r.Post("/checkout", controllers.PlaceOrder(deps.Checkout, logg))

			r.Route("/orders", func(r chi.Router) {
				r.Get("/", controllers.ListMyOrders(deps.Orders, logg))
				r.Get("/{orderId}", controllers.GetMyOrder(deps.Orders, logg))
				r.Post("/{orderId}/cancel", controllers.CancelMyOrder(deps.Orders, logg))
				r.Post("/{orderId}/retry-payment", controllers.RetryPayment(deps.Checkout, logg))
			})

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireAnyRole(logg, enums.RoleAdmin.String(), enums.RoleStaff.String()))

				r.Route("/staff/orders", func(r chi.Router) {
					r.Get("/", controllers.StaffListOrders(deps.Orders, logg))
					r.Get("/{orderId}", controllers.StaffGetOrder(deps.Orders, logg))
					r.Put("/{orderId}/status", controllers.StaffUpdateOrderStatus(deps.Orders, logg))
				})

				r.Route("/staff/inventory", func(r chi.Router) {
					r.Post("/flower-types", controllers.StaffCreateFlowerType(deps.Inventory, logg))
					r.Get("/flower-types", controllers.StaffListFlowerTypes(deps.Inventory, logg))
					r.Get("/flower-types/{flowerTypeId}/availability", controllers.StaffFlowerTypeAvailability(deps.Inventory, logg))
					r.Post("/batches", controllers.StaffImportBatch(deps.Inventory, logg))
					r.Get("/batches/{batchId}", controllers.StaffGetBatch(deps.Inventory, logg))
				})

				r.Route("/staff/notifications", func(r chi.Router) {
					r.Get("/", controllers.ListNotifications(deps.Notifications, logg))
					r.Get("/stream", controllers.StreamNotifications(deps.Notifications, logg))
					r.Put("/{notificationId}/read", controllers.MarkNotificationRead(deps.Notifications, logg))
					r.Put("/read-all", controllers.MarkAllNotificationsRead(deps.Notifications, logg))
				})

				r.Route("/admin/products", func(r chi.Router) {
					r.Post("/", controllers.AdminCreateProduct(deps.Catalog, logg))
					r.Put("/{productId}", controllers.AdminUpdateProduct(deps.Catalog, logg))
				})
				r.Post("/admin/categories", controllers.AdminCreateCategory(deps.Catalog, logg))
			})
		})
	})

	return r
}
