// Package httpapi exposes checkout sessions to the browser client over JSON/HTTP.
package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/nikolayk812/checkoutflow/internal/checkout"
	"github.com/nikolayk812/checkoutflow/internal/identity"
	"github.com/nikolayk812/checkoutflow/internal/metrics"
	"github.com/nikolayk812/checkoutflow/internal/port"
	"github.com/rs/cors"
	"golang.org/x/time/rate"
)

const maxBodyBytes = 1 << 20

type Options struct {
	AllowedOrigins []string
	RateLimit      rate.Limit
	RateBurst      int
	// ReturnURL is used for sessions created without one.
	ReturnURL string
}

type Server struct {
	manager    *checkout.Manager
	consents   port.ConsentAPI
	cache      port.ConsentCache
	identities *identity.Parser
	metrics    *metrics.Metrics
	opts       Options

	limiter *limiter
	router  *httprouter.Router
	handler http.Handler
}

func New(
	manager *checkout.Manager,
	consents port.ConsentAPI,
	cache port.ConsentCache,
	identities *identity.Parser,
	m *metrics.Metrics,
	opts Options,
) (*Server, error) {
	switch {
	case manager == nil:
		return nil, errors.New("manager is nil")
	case consents == nil:
		return nil, errors.New("consents is nil")
	case cache == nil:
		return nil, errors.New("cache is nil")
	case identities == nil:
		return nil, errors.New("identities is nil")
	case m == nil:
		return nil, errors.New("metrics is nil")
	case opts.RateLimit <= 0 || opts.RateBurst <= 0:
		return nil, errors.New("rate limit is not positive")
	}

	s := &Server{
		manager:    manager,
		consents:   consents,
		cache:      cache,
		identities: identities,
		metrics:    m,
		opts:       opts,
		limiter:    newLimiter(opts.RateLimit, opts.RateBurst, 10*time.Minute),
		router:     httprouter.New(),
	}

	s.routes()

	s.handler = cors.New(cors.Options{
		AllowedOrigins:   opts.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	}).Handler(s.router)

	return s, nil
}

func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) routes() {
	s.router.GET("/health", s.health)
	s.router.Handler(http.MethodGet, "/metrics", s.metrics.Handler())

	s.handle(http.MethodPost, "/sessions", s.createSession)
	s.handle(http.MethodGet, "/sessions/:id", s.getSession)
	s.handle(http.MethodDelete, "/sessions/:id", s.deleteSession)

	s.handle(http.MethodPut, "/sessions/:id/billing-address", s.setBillingAddress)
	s.handle(http.MethodPut, "/sessions/:id/shipping-address", s.setShippingAddress)
	s.handle(http.MethodPut, "/sessions/:id/shipments/:shipment/tier", s.selectTier)
	s.handle(http.MethodPut, "/sessions/:id/shipments/:shipment/carrier", s.selectCarrier)
	s.handle(http.MethodPut, "/sessions/:id/expanded", s.expand)
	s.handle(http.MethodPost, "/sessions/:id/steps/:step/retry", s.retry)

	s.handle(http.MethodPut, "/sessions/:id/consents/:scope/documents/:document", s.checkConsent)
	s.handle(http.MethodPost, "/sessions/:id/consents/:scope/next", s.nextConsent)
	s.handle(http.MethodPost, "/sessions/:id/consents/:scope/previous", s.previousConsent)
	s.handle(http.MethodPost, "/sessions/:id/consents/:scope/link", s.followConsentLink)

	s.handle(http.MethodPut, "/sessions/:id/payment-form", s.setPaymentForm)
	s.handle(http.MethodPost, "/sessions/:id/pay", s.pay)
	s.handle(http.MethodPost, "/sessions/:id/payment/complete", s.completePayment)

	s.handle(http.MethodGet, "/consents/:scope", s.getConsents)
	s.handle(http.MethodPost, "/consents/:scope/accept", s.acceptConsents)

	s.handle(http.MethodPost, "/shipping/tiers", s.shippingTiers)
}

// handle registers h behind the identity, rate limit and observe middleware.
// route is the pattern, used as the metrics label.
func (s *Server) handle(method, route string, h httprouter.Handle) {
	s.router.Handle(method, route, s.observe(route, s.authenticate(s.limit(h))))
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
