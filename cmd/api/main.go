package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/bloomcart/bloomcart-backend/api/routes"
	"github.com/bloomcart/bloomcart-backend/internal/cart"
	"github.com/bloomcart/bloomcart-backend/internal/catalog"
	"github.com/bloomcart/bloomcart-backend/internal/checkout"
	"github.com/bloomcart/bloomcart-backend/internal/inventory"
	"github.com/bloomcart/bloomcart-backend/internal/mailer"
	"github.com/bloomcart/bloomcart-backend/internal/notifications"
	"github.com/bloomcart/bloomcart-backend/internal/orders"
	"github.com/bloomcart/bloomcart-backend/internal/payments"
	"github.com/bloomcart/bloomcart-backend/internal/ratings"
	"github.com/bloomcart/bloomcart-backend/internal/shipping"
	"github.com/bloomcart/bloomcart-backend/internal/users"
	"github.com/bloomcart/bloomcart-backend/pkg/config"
	"github.com/bloomcart/bloomcart-backend/pkg/db"
	"github.com/bloomcart/bloomcart-backend/pkg/logger"
	"github.com/bloomcart/bloomcart-backend/pkg/migrate"
	"github.com/bloomcart/bloomcart-backend/pkg/redis"
)

// Gateways retry callbacks for at most a day or two; marks older than this
// are safe to forget.
const callbackDedupeTTL = 48 * time.Hour

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	httpClient := &http.Client{Timeout: 15 * time.Second}

	catalogRepo := catalog.NewRepository(dbClient.DB())
	catalogSvc, err := catalog.NewService(catalogRepo, logg)
	exitOn(logg, "catalog service", err)

	inventorySvc, err := inventory.NewService(inventory.NewRepository(dbClient.DB()), logg)
	exitOn(logg, "inventory service", err)

	ratingsSvc, err := ratings.NewService(ratings.NewRepository(dbClient.DB()), catalogSvc, logg)
	exitOn(logg, "ratings service", err)

	cartStore, err := cart.NewRedisStore(redisClient, cfg.Cart)
	exitOn(logg, "cart store", err)
	cartSvc, err := cart.NewService(cartStore, catalogSvc, logg)
	exitOn(logg, "cart service", err)

	hub := notifications.NewHub(logg)
	defer hub.Close()
	notificationsSvc, err := notifications.NewService(notifications.NewRepository(dbClient.DB()), hub, logg)
	exitOn(logg, "notifications service", err)

	var mailSender mailer.Sender
	if cfg.SMTP.Host != "" {
		mailSender, err = mailer.NewSMTPSender(cfg.SMTP)
		exitOn(logg, "smtp sender", err)
	} else {
		logg.Warn(context.Background(), "smtp host not configured, order emails disabled")
	}

	ordersRepo := orders.NewRepository(dbClient.DB())
	ordersSvc, err := orders.NewService(orders.ServiceParams{
		Repo:              ordersRepo,
		CatalogRepo:       catalogRepo,
		Inventory:         inventorySvc,
		Notifications:     notificationsSvc,
		Mailer:            mailSender,
		TransactionRunner: dbClient,
		Logger:            logg,
	})
	exitOn(logg, "orders service", err)

	momoGateway, err := payments.NewMomoGateway(cfg.Momo, httpClient)
	exitOn(logg, "momo gateway", err)
	vnpayGateway, err := payments.NewVNPayGateway(cfg.VNPay)
	exitOn(logg, "vnpay gateway", err)
	dispatcher, err := payments.NewDispatcher(payments.NewCODGateway(), momoGateway, vnpayGateway)
	exitOn(logg, "payment dispatcher", err)

	callbackGuard, err := payments.NewIdempotencyGuard(redisClient, callbackDedupeTTL, "payment-callback")
	exitOn(logg, "callback idempotency guard", err)
	callbackSvc, err := payments.NewCallbackService(dispatcher, callbackGuard, ordersSvc, logg)
	exitOn(logg, "callback service", err)

	checkoutSvc, err := checkout.NewService(checkout.ServiceParams{
		Cart:              cartSvc,
		CatalogRepo:       catalogRepo,
		Inventory:         inventorySvc,
		OrdersRepo:        ordersRepo,
		Orders:            ordersSvc,
		Notifications:     notificationsSvc,
		Dispatcher:        dispatcher,
		Mailer:            mailSender,
		TransactionRunner: dbClient,
		Logger:            logg,
		Config:            cfg.Checkout,
	})
	exitOn(logg, "checkout service", err)

	usersSvc, err := users.NewService(users.ServiceParams{
		Repo:        users.NewRepository(dbClient.DB()),
		RateLimiter: redisClient,
		Logger:      logg,
		JWT:         cfg.JWT,
		Password:    cfg.Password,
		RateLimits:  cfg.AuthRateLimit,
	})
	exitOn(logg, "users service", err)

	ghnClient, err := shipping.NewGHNClient(cfg.Shipping, httpClient)
	exitOn(logg, "shipping client", err)
	shippingSvc, err := shipping.NewService(ghnClient, redisClient, logg, cfg.Shipping)
	exitOn(logg, "shipping service", err)

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.New(routes.Dependencies{
			Config:        cfg,
			Logger:        logg,
			Database:      dbClient,
			Cache:         redisClient,
			Users:         usersSvc,
			Catalog:       catalogSvc,
			Cart:          cartSvc,
			Checkout:      checkoutSvc,
			Orders:        ordersSvc,
			Inventory:     inventorySvc,
			Ratings:       ratingsSvc,
			Shipping:      shippingSvc,
			Notifications: notificationsSvc,
			Callbacks:     callbackSvc,
		}),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}

func exitOn(logg *logger.Logger, what string, err error) {
	if err == nil {
		return
	}
	logg.Error(context.Background(), "failed to create "+what, err)
	os.Exit(1)
}
