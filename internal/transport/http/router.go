package http

import (
	"net/http"

	"github.com/givehub-api/internal/application/notification"
	"github.com/givehub-api/internal/application/otp"
	"github.com/givehub-api/internal/application/push"
	"github.com/givehub-api/internal/config"
	jwtinfra "github.com/givehub-api/internal/infrastructure/jwt"
	"github.com/givehub-api/internal/infrastructure/smtp"
	"github.com/givehub-api/internal/infrastructure/sns"
	"github.com/givehub-api/internal/infrastructure/webpush"
	"github.com/givehub-api/internal/transport/http/handler"
	appmiddleware "github.com/givehub-api/internal/transport/http/middleware"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"golang.org/x/time/rate"
)

// Deps holds all infrastructure dependencies for the router.
type Deps struct {
	ChallengeRepo    ChallengeRepository
	NotificationRepo NotificationRepository
	SubscriptionRepo SubscriptionRepository
	PreferenceRepo   PreferenceRepository
	Mailer           smtp.Mailer
	SMSSender        sns.SMSSender
	PushSender       webpush.Sender
	JWTProvider      *jwtinfra.Provider
}

// NewRouter builds and returns the application router.
func NewRouter(cfg *config.Config, deps *Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	var authMw func(http.Handler) http.Handler
	if deps.JWTProvider != nil {
		authMw = appmiddleware.Auth(deps.JWTProvider)
	} else {
		authMw = func(next http.Handler) http.Handler { return next }
	}

	// 5 requests/second, burst of 10. Applied to the public OTP endpoints,
	// which would otherwise let anyone pump email and SMS sends.
	sensitiveRL := appmiddleware.NewRateLimiter(rate.Limit(5), 10)

	otpSvc := otp.NewService(otp.ServiceDeps{
		ChallengeRepo: deps.ChallengeRepo,
		Mailer:        deps.Mailer,
		SMSSender:     deps.SMSSender,
	})
	notifSvc := notification.NewService(notification.ServiceDeps{
		NotificationRepo: deps.NotificationRepo,
		PreferenceRepo:   deps.PreferenceRepo,
		SubscriptionRepo: deps.SubscriptionRepo,
		PushSender:       deps.PushSender,
		Mailer:           deps.Mailer,
		PushConcurrency:  cfg.PushConcurrency,
		DispatchTimeout:  cfg.PushTimeout,
	})
	pushSvc := push.NewService(push.ServiceDeps{
		SubscriptionRepo: deps.SubscriptionRepo,
		PreferenceRepo:   deps.PreferenceRepo,
		PushSender:       deps.PushSender,
	})

	healthH := handler.NewHealthHandler()
	otpH := handler.NewOtpHandler(otpSvc)
	notifH := handler.NewNotificationHandler(notifSvc)
	pushH := handler.NewPushHandler(pushSvc)

	r.Route("/v1", func(r chi.Router) {
		// ── Public routes (no auth) ──────────────────────────────────────────
		r.Get("/health-check/{action}", healthH.Ping)
		r.Post("/health-check/{action}", healthH.Ping)
		r.Get("/test", healthH.Test)
		r.Get("/push/public-key", pushH.PublicKey)
		r.With(sensitiveRL.Limit).Post("/otp/request", otpH.Request)
		r.With(sensitiveRL.Limit).Post("/otp/verify", otpH.Verify)
		r.With(sensitiveRL.Limit).Post("/otp/resend", otpH.Resend)

		// ── Authenticated routes ─────────────────────────────────────────────
		r.Group(func(r chi.Router) {
			r.Use(authMw)

			r.Get("/notifications", notifH.List)
			r.Get("/notifications/unread-count", notifH.UnreadCount)
			r.Post("/notifications/mark-all-read", notifH.MarkAllRead)
			r.Post("/notifications/{id}/read", notifH.MarkRead)
			r.Delete("/notifications/{id}", notifH.Delete)

			r.Post("/push/subscribe", pushH.Subscribe)
			r.Post("/push/unsubscribe", pushH.Unsubscribe)
			r.Get("/push/preferences", pushH.GetPreferences)
			r.Put("/push/preferences", pushH.UpdatePreferences)

			// Admin-only routes. Other portal services dispatch
			// notifications through here with a service token.
			r.Group(func(r chi.Router) {
				r.Use(appmiddleware.RequireRole(jwtinfra.RoleAdmin))

				r.Post("/notifications", notifH.Create)
			})
		})
	})

	return r
}
