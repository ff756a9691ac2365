package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/plugins/migratecmd"
	pubnub "github.com/pubnub/go"

	"stepperslife/config"
	"stepperslife/handlers"
	"stepperslife/internal/gateway"
	_ "stepperslife/migrations"
	"stepperslife/monitoring"
	"stepperslife/security"
	"stepperslife/services"
	"stepperslife/utils"
)

func main() {
	app := pocketbase.New()

	// Load configuration
	cfg := config.LoadConfig()

	// Initialize Redis
	redisClient := utils.NewRedisClient(cfg.RedisURL)
	defer redisClient.Close()

	// Initialize PubNub
	var realtime services.RealtimePublisher
	if cfg.PubNubPublishKey != "" {
		pnConfig := pubnub.NewConfig()
		pnConfig.PublishKey = cfg.PubNubPublishKey
		pnConfig.SubscribeKey = cfg.PubNubSubscribeKey
		pnConfig.SecretKey = cfg.PubNubSecretKey

		realtime = services.NewPubNubPublisher(pubnub.NewPubNub(pnConfig))
	}

	// Initialize payment gateways
	gateways := gateway.NewRegistryFromConfig(cfg)

	// Initialize services
	intentStore := services.NewIntentStore(app, redisClient, cfg.IntentExpiry)
	ticketStore := services.NewTicketStore(app, intentStore)
	engine := services.NewIssuanceEngine(intentStore, ticketStore, redisClient, cfg.IssuanceLockExpiry)
	ledgerStore := services.NewPBLedgerStore(app)
	ledger := services.NewLedgerRecorder(
		ledgerStore,
		services.FeeSchedule{Bps: cfg.PlatformFeeBps, FlatPerTicket: cfg.FlatFeePerTicket},
		cfg.LedgerRetryAttempts,
		cfg.LedgerRetryBase,
	)
	dispatcher := services.NewNotificationDispatcher(
		services.NewPBEmailSender(app),
		realtime,
		redisClient,
		cfg.NotificationQueueSize,
		cfg.EmailDedupeTTL,
	)
	refunds := services.NewRefundService(intentStore, ticketStore, ledgerStore)
	authorizer := services.NewAuthorizer(cfg.AdminEmails)
	rateLimiter := security.NewRateLimiter(redisClient)

	// Initialize handlers
	webhookHandler := handlers.NewWebhookHandler(app, gateways, engine, ledger, dispatcher, refunds, ticketStore)
	checkoutHandler := handlers.NewCheckoutHandler(app, intentStore, gateways, cfg)
	purchaseHandler := handlers.NewPurchaseHandler(app, engine, ledger, dispatcher, ticketStore, cfg)
	adminHandler := handlers.NewAdminHandler(app, authorizer, engine, ledger, dispatcher, ticketStore)

	// Enable migrations
	migratecmd.MustRegister(app, app.RootCmd, migratecmd.Config{
		Automigrate: cfg.Environment == "development",
	})

	// Create context for background tasks
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start background tasks
	dispatcher.Start(ctx)
	go expireStaleIntents(ctx, intentStore)

	if cfg.EnableMetrics {
		monitoring.StartOpsServer(cfg.MetricsPort, redisClient)
	}

	// Setup graceful shutdown
	go handleShutdown(cancel)

	// Register routes
	app.OnServe().BindFunc(func(e *core.ServeEvent) error {
		// Webhook endpoints, one per configured provider
		e.Router.POST("/api/webhooks/{provider}", webhookHandler.HandleWebhook).
			BindFunc(rateLimiter.WebhookRateLimit(300))

		// Checkout endpoints
		e.Router.POST("/api/checkout/link", checkoutHandler.CreateCheckoutLink).
			Bind(apis.RequireAuth()).
			BindFunc(rateLimiter.AntiBot())

		// Direct purchase for trusted callers
		e.Router.POST("/api/purchase/direct", purchaseHandler.DirectPurchase).
			BindFunc(rateLimiter.WebhookRateLimit(60))

		// Admin endpoints
		e.Router.GET("/api/admin/orphans", adminHandler.ListOrphans).
			Bind(apis.RequireAuth())
		e.Router.GET("/api/admin/flagged", adminHandler.ListFlagged).
			Bind(apis.RequireAuth())
		e.Router.POST("/api/admin/flagged/{flagId}/resolve", adminHandler.ResolveFlag).
			Bind(apis.RequireAuth())
		e.Router.POST("/api/admin/reconcile/{provider}/{paymentId}", adminHandler.Reconcile).
			Bind(apis.RequireAuth())

		// Health check
		e.Router.GET("/health", func(e *core.RequestEvent) error {
			if err := utils.RedisHealthCheck(redisClient); err != nil {
				return e.JSON(503, map[string]string{
					"status": "unhealthy",
					"error":  err.Error(),
				})
			}
			return e.JSON(200, map[string]string{"status": "healthy"})
		})

		log.Printf("Server routes registered, providers: %v", gateways.Providers())

		return e.Next()
	})

	// Start server
	if err := app.Start(); err != nil {
		log.Fatal(err)
	}

	if err := gateways.Close(context.Background()); err != nil {
		log.Printf("Error closing payment gateways: %v", err)
	}
}

// expireStaleIntents sweeps pending intents past their expiry once a minute.
func expireStaleIntents(ctx context.Context, intents *services.IntentStore) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			expired, err := intents.ExpireStale(ctx, time.Now())
			if err != nil {
				log.Printf("Error expiring stale intents: %v", err)
				continue
			}
			if expired > 0 {
				log.Printf("Expired %d stale purchase intents", expired)
			}
		}
	}
}

// handleShutdown handles graceful shutdown
func handleShutdown(cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	log.Println("Shutdown signal received, cleaning up...")
	cancel()
}
