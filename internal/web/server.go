// Package web serves the single page and relays its API calls to the backend.
package web

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

//go:embed static/*
var staticFS embed.FS

// APIPrefix is the path the page uses to reach the backend.
const APIPrefix = "/api/backend"

// Server is the HTTP server for the page and the backend rewrite rule.
type Server struct {
	addr    string
	backend *url.URL
	logger  *slog.Logger
	debug   bool
	engine  *gin.Engine
}

// Option configures a Server
type Option func(*Server)

// WithDebug keeps gin in debug mode, which prints routes and warnings to stdout.
func WithDebug(debug bool) Option {
	return func(s *Server) { s.debug = debug }
}

// NewServer creates a server listening on addr that proxies APIPrefix to backendURL.
func NewServer(addr, backendURL string, logger *slog.Logger, opts ...Option) (*Server, error) {
	target, err := url.Parse(backendURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse backend url: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{addr: addr, backend: target, logger: logger}
	for _, opt := range opts {
		opt(s)
	}
	if s.debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := s.routes(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Server) routes() error {
	page, err := fs.ReadFile(staticFS, "static/index.html")
	if err != nil {
		return fmt.Errorf("failed to read embedded page: %w", err)
	}

	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(gin.Recovery())
	r.Use(requestID())
	r.Use(requestLogger(s.logger))

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
	})

	r.GET("/", func(c *gin.Context) {
		c.Data(http.StatusOK, "text/html; charset=utf-8", page)
	})
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "backend": s.backend.String()})
	})

	proxy := s.proxy()
	r.Any(APIPrefix+"/*path", func(c *gin.Context) {
		c.Request.URL.Path = c.Param("path")
		c.Request.URL.RawPath = ""
		proxy.ServeHTTP(c.Writer, c.Request)
	})

	s.engine = r
	return nil
}

// proxy forwards a request whose path has already been stripped of APIPrefix.
func (s *Server) proxy() *httputil.ReverseProxy {
	return &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(s.backend)
			pr.SetXForwarded()
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			s.logger.Error("backend proxy error", "path", r.URL.Path, "error", err)
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			w.WriteHeader(http.StatusBadGateway)
			fmt.Fprintf(w, "backend unavailable: %v", err)
		},
	}
}

// Handler returns the routed engine
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start runs the HTTP server until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 15 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("failed to shutdown web server", "error", err)
		}
	}()

	s.logger.Info("web server starting", "addr", s.addr, "backend", s.backend.String())
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to serve: %w", err)
	}
	return nil
}

const requestIDHeader = "X-Request-ID"

// requestID tags every request, keeping an id the caller already set.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
			c.Request.Header.Set(requestIDHeader, id)
		}
		c.Set("request_id", id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		c.Next()

		logger.Info("http request",
			"request_id", c.GetString("request_id"),
			"method", c.Request.Method,
			"path", path,
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
}
