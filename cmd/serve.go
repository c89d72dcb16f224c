package cmd

import (
	"context"
	"database/sql"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/odin-workspace/ms-go-billing/app/authclient"
	"github.com/odin-workspace/ms-go-billing/app/controller"
	"github.com/odin-workspace/ms-go-billing/app/gateway"
	appmiddleware "github.com/odin-workspace/ms-go-billing/app/middleware"
	"github.com/odin-workspace/ms-go-billing/app/repository"
	"github.com/odin-workspace/ms-go-billing/app/service"
	"github.com/odin-workspace/ms-go-billing/config"

	_ "github.com/go-sql-driver/mysql"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long:  "Start the HTTP (Echo) server for checkout tokens, gateway notifications, and subscription reads.",
	Run:   runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(_ *cobra.Command, _ []string) {
	cfg, services, cleanup := mustCreateServices()
	defer cleanup()

	paymentController := controller.NewPaymentController(services.orders)
	subscriptionController := controller.NewSubscriptionController(services.subscriptions)
	accounts := authclient.NewAccountClient(cfg.InternalEndpoints)

	e := setupHTTPServer(paymentController, subscriptionController, accounts)

	go func() {
		httpAddr := net.JoinHostPort(cfg.HTTP.Host, cfg.HTTP.Port)
		logrus.WithField("addr", httpAddr).Info("Starting HTTP server")
		if err := e.Start(httpAddr); err != nil && err != http.ErrServerClosed {
			logrus.WithError(err).Fatal("HTTP server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logrus.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Warn("HTTP shutdown error")
	}

	logrus.Info("Server stopped")
}

func setupHTTPServer(
	paymentController *controller.PaymentController,
	subscriptionController *controller.SubscriptionController,
	accounts *authclient.AccountClient,
) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	e.Use(echomiddleware.RequestLoggerWithConfig(echomiddleware.RequestLoggerConfig{
		LogURI:       true,
		LogStatus:    true,
		LogMethod:    true,
		LogRemoteIP:  true,
		LogLatency:   true,
		LogUserAgent: true,
		LogError:     true,
		HandleError:  true,
		LogRequestID: true,
		LogValuesFunc: func(_ echo.Context, v echomiddleware.RequestLoggerValues) error {
			fields := logrus.Fields{
				"remote_ip":  v.RemoteIP,
				"host":       v.Host,
				"method":     v.Method,
				"uri":        v.URI,
				"status":     v.Status,
				"latency":    v.Latency.String(),
				"latency_ns": v.Latency.Nanoseconds(),
				"user_agent": v.UserAgent,
			}
			entry := logrus.WithFields(fields)
			if v.Error != nil {
				entry = entry.WithError(v.Error)
			}
			entry.Info("http_request")
			return nil
		},
	}))
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORS())
	e.Use(echomiddleware.RequestID())

	e.GET("/health", paymentController.Health)
	e.GET("/plans", subscriptionController.ListPlans)

	// The gateway signs notifications itself; no user session on this route.
	e.POST("/payments/notify", paymentController.HandleNotification)

	requireUser := appmiddleware.RequireUser(accounts)
	payments := e.Group("/payments", requireUser)
	payments.POST("/token", paymentController.CreateToken)
	payments.GET("/status", paymentController.GetStatus)

	subscriptions := e.Group("/subscriptions", requireUser)
	subscriptions.GET("/me", subscriptionController.GetMine)

	return e
}

type billingServices struct {
	orders        *service.OrderService
	subscriptions *service.SubscriptionService
}

func mustCreateServices() (*config.Config, *billingServices, func()) {
	cfg, db, cleanup := mustOpenDatabase()

	orderRepo := repository.NewPaymentOrderRepository(db)
	eventRepo := repository.NewPaymentEventRepository(db)
	subscriptionRepo := repository.NewSubscriptionRepository(db)

	midtrans := gateway.NewClient(cfg.Midtrans)
	subscriptionService := service.NewSubscriptionService(subscriptionRepo, cfg.Billing)
	orderService := service.NewOrderService(orderRepo, eventRepo, midtrans, subscriptionService, cfg.Billing)

	return cfg, &billingServices{
		orders:        orderService,
		subscriptions: subscriptionService,
	}, cleanup
}

func mustOpenDatabase() (*config.Config, *sql.DB, func()) {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}
	if err := configureLogging(cfg); err != nil {
		logrus.WithError(err).Fatal("Failed to configure logging")
	}

	db, err := sql.Open("mysql", cfg.MySQL.DSN)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to connect to database")
	}

	db.SetMaxOpenConns(cfg.MySQL.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MySQL.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.MySQL.ConnMaxLifetime)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		logrus.WithError(err).Fatal("Failed to ping database")
	}

	cleanup := func() {
		if err := db.Close(); err != nil {
			logrus.WithError(err).Warn("Failed to close database")
		}
	}

	return cfg, db, cleanup
}
