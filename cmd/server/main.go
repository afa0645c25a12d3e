package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/devrup/organics-api/internal/checkout"
	"github.com/devrup/organics-api/internal/config"
	"github.com/devrup/organics-api/internal/coupon"
	"github.com/devrup/organics-api/internal/handlers"
	"github.com/devrup/organics-api/internal/logging"
	"github.com/devrup/organics-api/internal/mykafka"
	"github.com/devrup/organics-api/internal/notify"
	"github.com/devrup/organics-api/internal/payment"
	httpserver "github.com/devrup/organics-api/internal/transport/http"
	"github.com/devrup/organics-api/pkg/db"
	loggingmw "github.com/devrup/organics-api/pkg/middleware/logging"
)

func main() {
	configuration, err := config.LoadConfig()
	if err != nil {
		log.Fatal(err)
	}

	logger := logging.New(configuration.LogLevel)

	ctx := context.Background()
	database, err := db.Open(ctx, configuration.DatabaseURL)
	if err != nil {
		log.Fatalf("database init error: %v", err)
	}
	if err := db.Migrate(database); err != nil {
		log.Fatalf("database migration error: %v", err)
	}

	var producer *mykafka.Producer
	if len(configuration.KafkaBrokers) > 0 {
		producer, err = mykafka.NewProducer(configuration.KafkaBrokers)
		if err != nil {
			log.Fatal(err)
		}
		defer producer.Close()
	}

	gateway := payment.NewClient(payment.ClientConfig{
		BaseURL:         configuration.GatewayBaseURL,
		ClientID:        configuration.GatewayClientID,
		ClientSecret:    configuration.GatewayClientSecret,
		WebhookUser:     configuration.GatewayWebhookUser,
		WebhookPassword: configuration.GatewayWebhookPassword,
	})

	dispatcher := &notify.Dispatcher{
		DB:       database,
		Producer: producer,
		Mailer: notify.NewMailer(notify.MailConfig{
			SMTPAddress: configuration.SMTPAddress,
			SMTPHost:    configuration.SMTPHost,
			From:        configuration.FromEmail,
			Password:    configuration.FromEmailPass,
		}),
		AdminEmail: configuration.AdminEmail,
	}

	validator := &coupon.Validator{DB: database}
	checkoutSvc := &checkout.Service{
		DB:          database,
		Coupons:     validator,
		Gateway:     gateway,
		FrontendURL: configuration.FrontendURL,
	}
	reconciler := payment.NewReconciler(database, gateway, dispatcher)

	e := echo.New()
	e.Pre(middleware.RemoveTrailingSlash())
	e.Use(middleware.Recover(), middleware.RequestID())
	e.Use(loggingmw.RequestLogger(logger))

	deps := httpserver.Deps{
		CartHandler:     &handlers.CartHandler{DB: database, JWTSecret: configuration.JWTSecret},
		CouponHandler:   &handlers.CouponHandler{Validator: validator, JWTSecret: configuration.JWTSecret},
		CheckoutHandler: &handlers.CheckoutHandler{Svc: checkoutSvc, Notifier: dispatcher, JWTSecret: configuration.JWTSecret},
		PaymentHandler:  &handlers.PaymentHandler{Reconciler: reconciler, Gateway: gateway, JWTSecret: configuration.JWTSecret},
		OrderHandler:    &handlers.OrderHandler{DB: database, Notifier: dispatcher, JWTSecret: configuration.JWTSecret},
	}
	httpserver.Register(e, &deps)

	srv := &http.Server{
		Addr:         ":" + configuration.ServerPort,
		Handler:      e,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("http server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}
}
