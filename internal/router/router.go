package router

import (
	"net/http"
	"time"

	"govtender/internal/controller"
	"govtender/internal/metrics"
	"govtender/internal/models"

	"github.com/go-chi/chi/v5"
	chimid "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

type Config struct {
	Log            zerolog.Logger
	CORSOrigin     string
	RequestTimeout time.Duration
	Metrics        bool
	Secure         func(http.Handler) http.Handler
	AuthRateLimit  func(http.Handler) http.Handler
	// take the client address from X-Forwarded-For and X-Real-IP; only safe
	// behind a proxy that overwrites them
	TrustProxy bool
	// directory served under /objects when documents are stored locally
	ObjectsDir string
}

func NewRouter(c *controller.Controller, cfg Config) http.Handler {
	r := chi.NewRouter()
	r.Use(chimid.RequestID)
	if cfg.TrustProxy {
		r.Use(chimid.RealIP)
	}
	r.Use(loggerMiddleware(cfg.Log))
	r.Use(chimid.Recoverer)
	if cfg.RequestTimeout > 0 {
		r.Use(chimid.Timeout(cfg.RequestTimeout))
	}
	if cfg.Metrics {
		r.Use(metrics.Middleware)
	}
	if cfg.Secure != nil {
		r.Use(cfg.Secure)
	}
	r.Use(CORS(cfg.CORSOrigin))

	authLimit := cfg.AuthRateLimit
	if authLimit == nil {
		authLimit = noopMiddleware
	}

	r.Get("/health", c.Health)
	r.Get("/api/ping", c.Ping)
	if cfg.Metrics {
		r.Handle("/metrics", promhttp.Handler())
	}
	if cfg.ObjectsDir != "" {
		r.Handle("/objects/*", http.StripPrefix("/objects/", http.FileServer(objectsFS{http.Dir(cfg.ObjectsDir)})))
	}

	r.Route("/api/citizens", func(r chi.Router) {
		r.With(authLimit).Post("/register", c.RegisterCitizen)
		r.With(authLimit).Post("/login", c.LoginCitizen)
		r.With(authLimit).Post("/refresh-token", c.RefreshToken(models.RoleCitizen))
		r.Group(func(r chi.Router) {
			r.Use(c.Authenticate)
			r.Post("/logout", c.Logout(models.RoleCitizen))
			r.Post("/change-password", c.ChangePassword(models.RoleCitizen))
		})
	})

	r.Route("/api/admins", func(r chi.Router) {
		r.With(authLimit).Post("/register", c.RegisterAdmin)
		r.With(authLimit).Post("/login", c.LoginAdmin)
		r.With(authLimit).Post("/refresh-token", c.RefreshToken(models.RoleAdmin))
		r.Group(func(r chi.Router) {
			r.Use(c.Authenticate)
			r.Post("/logout", c.Logout(models.RoleAdmin))
			r.Post("/change-password", c.ChangePassword(models.RoleAdmin))
		})
	})

	r.Route("/api/owners", func(r chi.Router) {
		r.With(authLimit).Post("/login", c.LoginOwner)
		r.With(authLimit).Post("/refresh-token", c.RefreshToken(models.RoleOwner))
		r.Group(func(r chi.Router) {
			r.Use(c.Authenticate)
			r.Post("/logout", c.Logout(models.RoleOwner))
			r.Post("/change-password", c.ChangePassword(models.RoleOwner))
			r.Post("/verify", c.VerifyAdmin)
			r.Get("/pending", c.PendingAdmins)
		})
	})

	r.Group(func(r chi.Router) {
		r.Use(c.Authenticate)

		r.Get("/tenders", c.GetTenders)
		r.Post("/tenders", c.NewTender)
		r.Get("/tenders/{id}", c.GetTender)
		r.Patch("/tenders/{id}/status", c.SetTenderStatus)
		r.Post("/tenders/{id}/complete", c.CompleteTender)
		r.Post("/tenders/{tenderId}/bids", c.NewBid)
		r.Get("/tenders/{tenderId}/bids", c.TenderBids)
		r.Get("/users/me/bids", c.MyBids)
		r.Patch("/bids/{id}/status", c.SetBidStatus)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"reason":"page not found"}`))
	})

	return r
}
