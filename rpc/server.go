// Package rpc exposes the ledger over HTTP: read routes evaluated against
// committed state, listing routes served from the projection database, and a
// single signed-call submission route.
package rpc

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"nftledger/core"
	"nftledger/indexer"
)

const (
	maxBodyBytes    = 1 << 20
	readTimeout     = 10 * time.Second
	writeTimeout    = 15 * time.Second
	shutdownTimeout = 5 * time.Second
)

// Server serves the HTTP API.
type Server struct {
	exec    *core.Executor
	index   *indexer.Indexer
	limiter *RateLimiter
	origin  string
	logger  *slog.Logger
}

// Option customises a Server.
type Option func(*Server)

// WithIndexer enables the listing routes.
func WithIndexer(ix *indexer.Indexer) Option {
	return func(s *Server) { s.index = ix }
}

// WithRateLimit applies a per-client request budget to /v1 routes.
func WithRateLimit(limit RateLimit) Option {
	return func(s *Server) { s.limiter = NewRateLimiter(limit) }
}

// WithAllowedOrigin sets the CORS origin; the default is "*".
func WithAllowedOrigin(origin string) Option {
	return func(s *Server) { s.origin = origin }
}

// WithLogger sets the request logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

func NewServer(exec *core.Executor, opts ...Option) *Server {
	s := &Server{exec: exec, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "rpc")
	return s
}

// Handler builds the route tree.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(cors(s.origin))
	r.Use(observe(s.logger))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(v1 chi.Router) {
		if s.limiter != nil {
			v1.Use(s.limiter.Middleware)
		}
		v1.Get("/meta", s.handleMeta)
		v1.Get("/events", s.handleEvents)
		v1.Post("/calls", s.handleSubmit)
		v1.Get("/nonces/{account}", s.handleNonce)

		v1.Get("/stats", s.handleStats)
		v1.Get("/collections", s.handleListCollections)
		v1.Route("/collections/{collectionID}", func(c chi.Router) {
			c.Get("/", s.handleCollection)
			c.Get("/tokens", s.handleCollectionTokens)
			c.Get("/serials/{serial}", s.handleCollectionSerial)
			c.Get("/operators/{account}", s.handleOperator)
			c.Get("/drop", s.handleDropConfig)
			c.Get("/drop/{account}", s.handleDropStats)
			c.Get("/checkin", s.handleCheckInProgram)
			c.Get("/checkin/{account}", s.handleCheckInStats)
			c.Get("/checkins", s.handleCheckIns)
			c.Get("/members/{account}", s.handleMembership)
		})
		v1.Route("/tokens/{tokenID}", func(t chi.Router) {
			t.Get("/", s.handleToken)
			t.Get("/royalties", s.handleRoyalties)
			t.Get("/royalty-info", s.handleRoyaltyInfo)
			t.Get("/transfers", s.handleTokenTransfers)
		})
		v1.Get("/wallets/{account}", s.handleWallet)
		v1.Get("/transfers", s.handleTransfers)
	})
	return otelhttp.NewHandler(r, "nftledger.api")
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           http.MaxBytesHandler(s.Handler(), maxBodyBytes),
		ReadHeaderTimeout: readTimeout,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http api listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
