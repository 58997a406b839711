// Package httpadapter exposes the analysis services over a chi router.
package httpadapter

import (
	"context"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"threatlens/internal/observability"
	"threatlens/internal/ports"
	"threatlens/internal/services/analysis"
	"threatlens/internal/services/reports"
	"threatlens/internal/services/sources"
	"threatlens/internal/workers/classifyrunner"
)

type Analyzer interface {
	Submit(ctx context.Context, sub analysis.Submission) (analysis.Submitted, error)
	Classify(ctx context.Context, indicatorID string, force bool) (analysis.Result, error)
	AnalyzeBatch(ctx context.Context, indicatorIDs []string) ([]analysis.BatchItem, error)
}

type Reports interface {
	Latest(ctx context.Context, value string) (reports.Report, error)
	Stats(ctx context.Context) (reports.Stats, error)
}

type Sources interface {
	List() []sources.Source
}

const (
	defaultWaitTimeout = 30 * time.Second
	maxWaitTimeout     = 5 * time.Minute
	maxBodyBytes       = 1 << 20
)

type Deps struct {
	Analyzer  Analyzer
	Reports   Reports
	Sources   Sources
	Jobs      ports.JobRepository
	Processor classifyrunner.Processor
	Metrics   *observability.Metrics
	Gatherer  prometheus.Gatherer
	Logger    *zap.Logger
}

type Server struct {
	Deps
	validate *validator.Validate
}

func New(deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Gatherer == nil {
		deps.Gatherer = prometheus.DefaultGatherer
	}
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return &Server{Deps: deps, validate: v}
}

// Routes returns a chi.Router with every endpoint mounted.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.getHealthz)
	r.Handle("/metrics", promhttp.HandlerFor(s.Gatherer, promhttp.HandlerOpts{}))
	r.Get("/providers", s.getProviders)

	r.Route("/indicators", func(r chi.Router) {
		r.Post("/", s.postIndicator)
		r.Get("/{value}/report", s.getReport)
		r.Post("/{id}/classify", s.postClassify)
	})
	r.Post("/classify/batch", s.postClassifyBatch)
	r.Get("/verdicts/stats", s.getStats)
	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.Logger.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("took", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())))
	})
}
