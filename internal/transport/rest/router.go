package rest

import (
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"

	"github.com/frahmantamala/payments-service/internal/payment"
	"github.com/frahmantamala/payments-service/internal/transport/middleware"
	"github.com/frahmantamala/payments-service/internal/transport/swagger"
	"github.com/frahmantamala/payments-service/internal/ws"
)

func RegisterAllRoutes(
	router *chi.Mux,
	db *sql.DB,
	allowedOrigins string,
	paymentHandler *payment.Handler,
	webhookHandler *payment.WebhookHandler,
	wsHandler *ws.Handler,
	logger *slog.Logger,
) {
	healthHandler := NewHealthHandler(db)

	// Apply global middleware
	router.Use(middleware.CORS(allowedOrigins))
	router.Use(middleware.RequestID)
	router.Use(middleware.RecoveryMiddleware(logger))
	router.Use(middleware.LoggingMiddleware(logger))

	// Serve OpenAPI spec at root (outside API prefix)
	router.Get("/openapi.yml", func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, "./api/openapi.yml")
	})
	// Swagger UI route at root
	router.Handle("/swagger/*", swagger.Handler())

	// Websocket endpoint; API key checked in the handler before upgrade
	if wsHandler != nil {
		router.Handle("/ws", wsHandler)
	}

	// Mount API under /api/v1
	router.Route("/api/v1", func(r chi.Router) {
		// Health check routes
		r.Get("/health", healthHandler.healthCheckHandler)
		r.Get("/ping", healthHandler.pingHandler)

		if webhookHandler != nil {
			r.Post("/payments/webhook", webhookHandler.HandleWebhook)
		}

		if paymentHandler != nil {
			r.Post("/payments", paymentHandler.CreateIntent)
			r.Get("/payments/{reference}", paymentHandler.GetPayment)
		}
	})
}
