package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/render"
	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/sells-group/ans-cli/internal/model"
)

// Repository is the data access the HTTP handlers need. *Store implements it.
type Repository interface {
	ListOperators(ctx context.Context, page, limit int, search string) ([]model.Operator, int, error)
	GetOperator(ctx context.Context, id string) (*model.Operator, error)
	ExpenseHistory(ctx context.Context, registryID string) ([]model.Expense, error)
	TopStatistics(ctx context.Context, limit int) ([]model.AggregateStat, error)
}

var _ Repository = (*Store)(nil)

// Options configures the HTTP server.
type Options struct {
	CORSOrigins     []string
	StatsLimit      int
	StatsCacheTTL   time.Duration
	DefaultPageSize int
	MaxPageSize     int
}

// Server exposes the read API.
type Server struct {
	repo  Repository
	opts  Options
	cache *gocache.Cache
	log   *zap.Logger
}

// OperatorPage is the paginated operator listing.
type OperatorPage struct {
	Data  []model.Operator `json:"data"`
	Total int              `json:"total"`
	Page  int              `json:"page"`
	Limit int              `json:"limit"`
}

type errorResponse struct {
	Detail string `json:"detail"`
}

// NewServer creates a Server. Zero-valued options fall back to defaults.
func NewServer(repo Repository, opts Options) *Server {
	if opts.StatsLimit <= 0 {
		opts.StatsLimit = 10
	}
	if opts.DefaultPageSize <= 0 {
		opts.DefaultPageSize = 10
	}
	if opts.MaxPageSize <= 0 {
		opts.MaxPageSize = 100
	}
	return &Server{
		repo:  repo,
		opts:  opts,
		cache: gocache.New(opts.StatsCacheTTL, 2*opts.StatsCacheTTL+time.Minute),
		log:   zap.L().With(zap.String("component", "api")),
	}
}

// Router returns the HTTP handler with every route mounted.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.opts.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", s.handleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Get("/operadoras", s.handleListOperators)
		r.Get("/operadoras/{id}", s.handleGetOperator)
		r.Get("/operadoras/{id}/despesas", s.handleExpenses)
		r.Get("/estatisticas", s.handleStatistics)
	})
	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListOperators(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, ok := intParam(q.Get("page"), 1)
	if !ok || page < 1 {
		writeError(w, r, http.StatusBadRequest, "page must be an integer >= 1")
		return
	}
	limit, ok := intParam(q.Get("limit"), s.opts.DefaultPageSize)
	if !ok || limit < 1 || limit > s.opts.MaxPageSize {
		writeError(w, r, http.StatusBadRequest, "limit must be an integer between 1 and "+strconv.Itoa(s.opts.MaxPageSize))
		return
	}

	ops, total, err := s.repo.ListOperators(r.Context(), page, limit, q.Get("search"))
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	if ops == nil {
		ops = []model.Operator{}
	}
	writeJSON(w, r, http.StatusOK, OperatorPage{Data: ops, Total: total, Page: page, Limit: limit})
}

func (s *Server) handleGetOperator(w http.ResponseWriter, r *http.Request) {
	op, err := s.repo.GetOperator(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, ErrNotFound) {
		writeError(w, r, http.StatusNotFound, "Operadora não encontrada")
		return
	}
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, op)
}

func (s *Server) handleExpenses(w http.ResponseWriter, r *http.Request) {
	expenses, err := s.repo.ExpenseHistory(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, expenses)
}

func (s *Server) handleStatistics(w http.ResponseWriter, r *http.Request) {
	key := "stats:" + strconv.Itoa(s.opts.StatsLimit)
	if cached, found := s.cache.Get(key); found {
		writeJSON(w, r, http.StatusOK, cached)
		return
	}

	stats, err := s.repo.TopStatistics(r.Context(), s.opts.StatsLimit)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	if s.opts.StatsCacheTTL > 0 {
		s.cache.Set(key, stats, s.opts.StatsCacheTTL)
	}
	writeJSON(w, r, http.StatusOK, stats)
}

func (s *Server) internalError(w http.ResponseWriter, r *http.Request, err error) {
	s.log.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
	writeError(w, r, http.StatusInternalServerError, "Internal Server Error")
}

// intParam parses raw, returning def when it is empty.
func intParam(raw string, def int) (int, bool) {
	if raw == "" {
		return def, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return v, true
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	render.Status(r, status)
	render.JSON(w, r, v)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, detail string) {
	writeJSON(w, r, status, errorResponse{Detail: detail})
}
