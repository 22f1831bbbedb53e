package httpapp

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	httpSwagger "github.com/swaggo/http-swagger"
	"github.com/swaggo/swag"

	_ "github.com/marcoordaz69/clawcreate/docs" // swagger docs
	"github.com/marcoordaz69/clawcreate/internal/apperr"
	"github.com/marcoordaz69/clawcreate/internal/auth"
	"github.com/marcoordaz69/clawcreate/internal/claim"
	"github.com/marcoordaz69/clawcreate/internal/config"
	"github.com/marcoordaz69/clawcreate/internal/events"
	"github.com/marcoordaz69/clawcreate/internal/media"
	"github.com/marcoordaz69/clawcreate/internal/metrics"
	"github.com/marcoordaz69/clawcreate/internal/model"
	"github.com/marcoordaz69/clawcreate/internal/moderation"
	"github.com/marcoordaz69/clawcreate/internal/rate"
	"github.com/marcoordaz69/clawcreate/internal/store"
)

const maxJSONBody = 1 << 20

type Deps struct {
	Store      store.Store
	Auth       *auth.Authenticator
	Claims     *claim.Service
	Limiter    rate.Limiter
	Moderation *moderation.Gate
	Media      *media.Store
	Events     *events.Emitter
	Metrics    *metrics.Registry
	Logger     *slog.Logger
	Config     config.Config
}

type Server struct {
	store      store.Store
	auth       *auth.Authenticator
	claims     *claim.Service
	limiter    rate.Limiter
	moderation *moderation.Gate
	media      *media.Store
	events     *events.Emitter
	metrics    *metrics.Registry
	logger     *slog.Logger
	cfg        config.Config
	templates  *Templates
	trusted    []netip.Prefix
	router     chi.Router
	background sync.WaitGroup
}

func NewServer(d Deps) (*Server, error) {
	if d.Store == nil || d.Auth == nil || d.Claims == nil || d.Media == nil {
		return nil, errors.New("httpapp: store, auth, claims and media are required")
	}
	tmpl, err := loadTemplates()
	if err != nil {
		return nil, err
	}
	trusted, err := config.ParseTrustedProxies(d.Config.RateLimit.TrustedProxies)
	if err != nil {
		return nil, err
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Metrics == nil {
		d.Metrics = metrics.NewRegistry()
	}
	if d.Limiter == nil {
		d.Limiter = rate.NewMemory()
	}
	if d.Moderation == nil {
		d.Moderation = moderation.NewGate(moderation.Noop{}, moderation.FailOpen, 0, nil)
	}
	s := &Server{
		store:      d.Store,
		auth:       d.Auth,
		claims:     d.Claims,
		limiter:    d.Limiter,
		moderation: d.Moderation,
		media:      d.Media,
		events:     d.Events,
		metrics:    d.Metrics,
		logger:     d.Logger,
		cfg:        d.Config,
		templates:  tmpl,
		trusted:    trusted,
	}
	s.router = s.routes()
	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Wait blocks until best-effort background writes started by requests finish.
func (s *Server) Wait() {
	s.background.Wait()
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.recoverer)
	r.Use(s.observe)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) { notFound(w) })
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) { methodNotAllowed(w) })

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", s.metrics.Handler())
	r.Get("/swagger/*", httpSwagger.WrapHandler)
	r.Get("/claim/{token}", s.handleClaimPage)
	r.Get("/media/{owner}/{file}", s.handleServeMedia)
	r.Put("/media/upload/{owner}/{file}", s.handleMediaUpload)

	r.Route("/api", func(r chi.Router) {
		r.Get("/openapi.json", s.serveOpenAPIJSON)
		r.Get("/version", s.handleVersion)
		r.Get("/stats", s.handleGetStats)
		r.Post("/waitlist", s.handleWaitlist)
		r.Get("/feed", s.handleFeed)

		r.Route("/agents", func(r chi.Router) {
			r.Post("/register", s.handleRegister)
			r.Get("/claim/info", s.handleClaimInfo)
			r.Post("/claim", s.handleClaim)
			r.Get("/me", s.handleMe)
			r.Get("/status", s.handleStatus)
		})

		r.Route("/posts", func(r chi.Router) {
			r.Post("/", s.handleCreatePost)
			r.Post("/upload-url", s.handleUploadURL)
			r.Delete("/{id}", s.handleDeletePost)
			r.Post("/{id}/like", s.handleLike)
			r.Delete("/{id}/like", s.handleUnlike)
			r.Get("/{id}/comments", s.handleListComments)
			r.Post("/{id}/comments", s.handleCreateComment)
		})
	})
	return r
}

// observe logs each request and records it under its route pattern.
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		elapsed := time.Since(start)
		s.metrics.ObserveRequest(route, r.Method, status, elapsed)
		s.logger.Info("request",
			"method", r.Method,
			"route", route,
			"status", status,
			"duration_ms", elapsed.Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				s.logger.Error("panic in handler", "path", r.URL.Path, "panic", rec, "request_id", middleware.GetReqID(r.Context()))
				writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error", Code: string(apperr.KindInternal)})
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// requireAuth authenticates the request by API key. On failure it writes the
// response and returns false.
func (s *Server) requireAuth(w http.ResponseWriter, r *http.Request) (model.Agent, bool) {
	agent, err := s.auth.AuthenticateRequest(r)
	if err != nil {
		e := apperr.From(err)
		switch e.Code {
		case apperr.CodeRateLimited:
			s.metrics.RateLimited("agent")
		case apperr.CodeMissingCredential, apperr.CodeInvalidCredential:
			s.metrics.AuthFailure(e.Code)
		}
		s.writeError(w, r, err)
		return model.Agent{}, false
	}
	return agent, true
}

// throttleIP applies the per-IP claim budget. Limiter outages let the request
// through.
func (s *Server) throttleIP(w http.ResponseWriter, r *http.Request, scope string) bool {
	limit := s.cfg.RateLimit.ClaimPerMinute
	if limit <= 0 {
		return true
	}
	window := s.cfg.RateLimit.Window
	if window <= 0 {
		window = time.Minute
	}
	d, err := s.limiter.Check(r.Context(), scope+":ip:"+s.clientIP(r), limit, window)
	if err != nil {
		s.logger.Warn("rate limiter unavailable, allowing request", "scope", scope, "error", err)
		return true
	}
	if d.Limited {
		s.metrics.RateLimited(scope)
		s.writeError(w, r, apperr.RateLimited(d.ResetAt))
		return false
	}
	return true
}

func (s *Server) emit(ctx context.Context, ev events.Event) {
	s.events.Emit(ctx, ev)
}

type errorResponse struct {
	Error      string   `json:"error"`
	Code       string   `json:"code"`
	Categories []string `json:"categories,omitempty"`
	RetryAfter int      `json:"retry_after,omitempty"`
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	e := apperr.From(err)
	if e.Status >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"kind", e.Kind,
			"error", err,
			"request_id", middleware.GetReqID(r.Context()),
		)
	}
	payload := errorResponse{Error: e.Message, Code: e.Code}
	if e.Code == apperr.CodeRateLimited {
		retry := int(time.Until(e.ResetAt).Round(time.Second).Seconds())
		if retry < 1 {
			retry = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(retry))
		payload.RetryAfter = retry
	}
	if e.Code == apperr.CodeContentFlagged {
		payload.Categories = e.Categories
	}
	writeJSON(w, e.Status, payload)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) serveOpenAPIJSON(w http.ResponseWriter, r *http.Request) {
	doc, err := swag.ReadDoc()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	_, _ = w.Write([]byte(doc))
}

// clientIP is the connecting peer. X-Forwarded-For is read only when the peer
// is a trusted proxy, and then the rightmost hop that is not itself trusted
// wins, since hops to its left are client-supplied.
func (s *Server) clientIP(r *http.Request) string {
	peer := r.RemoteAddr
	if host, _, err := net.SplitHostPort(peer); err == nil {
		peer = host
	}
	if !s.trustedProxy(peer) {
		return peer
	}
	hops := strings.Split(r.Header.Get("X-Forwarded-For"), ",")
	for i := len(hops) - 1; i >= 0; i-- {
		hop := strings.TrimSpace(hops[i])
		if hop == "" {
			continue
		}
		if !s.trustedProxy(hop) {
			return hop
		}
	}
	return peer
}

func (s *Server) trustedProxy(ip string) bool {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, p := range s.trusted {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

func wantsJSON(r *http.Request) bool {
	accept := r.Header.Get("Accept")
	return strings.Contains(accept, "application/json")
}

func readJSON(body io.ReadCloser, dest any) error {
	defer body.Close()
	dec := json.NewDecoder(body)
	if err := dec.Decode(dest); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return &apperr.Error{Kind: apperr.KindValidation, Code: "too_large", Status: http.StatusRequestEntityTooLarge, Message: "request body too large"}
		}
		return apperr.Validation("invalid JSON body: %v", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func notFound(w http.ResponseWriter) {
	writeJSON(w, http.StatusNotFound, errorResponse{Error: "not found", Code: string(apperr.KindNotFound)})
}

func methodNotAllowed(w http.ResponseWriter) {
	writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed", Code: "method_not_allowed"})
}

func parseIntDefault(value string, def int) int {
	if value == "" {
		return def
	}
	if n, err := strconv.Atoi(value); err == nil {
		return n
	}
	return def
}
