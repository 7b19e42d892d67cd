// Package http exposes the ledger over a JSON API and a server-rendered
// day page.
package http

import (
	"context"
	"html/template"
	"io/fs"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"milkbook/internal/catalog"
	"milkbook/internal/core"
	applog "milkbook/internal/log"
	"milkbook/internal/middleware/ratelimit"
	"milkbook/internal/middleware/security"
	appweb "milkbook/web"
)

// Ledger is the engine surface the handlers need.
type Ledger interface {
	ComputeView(ctx context.Context, date string) (core.View, error)
	SaveDay(ctx context.Context, date string, items []core.LineItem, totalPaid core.Money) (core.DayRecord, error)
	ApplyPayment(ctx context.Context, date string, amount core.Money) (core.DayRecord, error)
	DeleteItem(ctx context.Context, date, itemID string) (core.DayRecord, error)
}

type Options struct {
	CORSOrigins []string
	RateLimit   ratelimit.Config
	Logger      *applog.Logger
	// Templates overrides the embedded template set.
	Templates fs.FS
	// Now supplies "today" for the day page.
	Now func() time.Time
}

type Server struct {
	http.Server
	ledger    Ledger
	catalog   *catalog.Catalog
	templates *template.Template
	limiter   *ratelimit.Limiter
	detector  *security.Detector
	logger    *applog.Logger
	now       func() time.Time
	started   time.Time

	shutdownOnce sync.Once
}

// NewServer wires routes and middleware, returning a ready-to-run server.
func NewServer(addr string, ledger Ledger, cat *catalog.Catalog, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = applog.New(applog.DefaultConfig())
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Templates == nil {
		opts.Templates = appweb.TemplatesFS
	}
	if cat == nil {
		cat = catalog.Default()
	}

	s := &Server{
		ledger:   ledger,
		catalog:  cat,
		limiter:  ratelimit.NewLimiter(opts.RateLimit),
		detector: security.NewDetector(),
		logger:   opts.Logger.WithComponent(applog.ComponentHTTP),
		now:      opts.Now,
		started:  time.Now(),
	}

	t, err := template.New("").Funcs(templateFuncs).ParseFS(opts.Templates, "templates/*.html")
	if err != nil {
		s.logger.Warn("Failed parsing templates", applog.FieldError, err)
	} else {
		s.templates = t
	}

	s.Server = http.Server{
		Addr:              addr,
		Handler:           s.routes(opts),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

func (s *Server) routes(opts Options) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(applog.Middleware(opts.Logger))
	r.Use(applog.RequestLogger)
	r.Use(middleware.Recoverer)
	r.Use(security.Headers(security.DefaultHeadersConfig()))
	r.Use(s.detector.Middleware)
	r.Use(s.limiter.Middleware(s.detector.ExtractClientIP, s.handleRateLimited, http.MethodPost, http.MethodDelete))

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)

	r.Get("/", s.handleDayPage)
	r.Route("/ui", func(r chi.Router) {
		r.Post("/items", s.handleAddItemForm)
		r.Post("/payments", s.handlePaymentForm)
		r.Post("/items/delete", s.handleDeleteItemForm)
	})

	r.Route("/api", func(r chi.Router) {
		if len(opts.CORSOrigins) > 0 {
			r.Use(cors.Handler(cors.Options{
				AllowedOrigins: opts.CORSOrigins,
				AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
				AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
				MaxAge:         300,
			}))
		}
		r.Get("/records", s.handleGetRecord)
		r.Post("/records", s.handleSaveRecord)
		r.Post("/records/{date}/payments", s.handleApplyPayment)
		r.Delete("/records/{date}/items/{itemID}", s.handleDeleteItem)
		r.Get("/products", s.handleProducts)
	})
	return r
}

func (s *Server) handleRateLimited(w http.ResponseWriter, r *http.Request) {
	applog.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded",
		applog.FieldComponent, applog.ComponentRateLimit,
		applog.FieldClientIP, s.detector.ExtractClientIP(r),
		applog.FieldMethod, r.Method,
		applog.FieldPath, r.URL.Path)
	writeJSON(w, http.StatusTooManyRequests, errorBody{Error: "Rate limit exceeded. Please try again later."})
}

// Shutdown stops the rate limiter and drains the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		err = s.Server.Shutdown(ctx)
	})
	return err
}
