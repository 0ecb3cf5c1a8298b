// Package api exposes the lookup service over HTTP.
package api

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/aluiziolira/isbn-finder/models"
	"github.com/aluiziolira/isbn-finder/search"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MaxUploadBytes is the largest accepted upload file.
const MaxUploadBytes = 10 << 20

// Service is what the handlers need from the application layer.
// *search.Service satisfies it.
type Service interface {
	SearchSingle(ctx context.Context, rawISBN string) (search.SingleResult, error)
	StartBulk(ctx context.Context, rawISBNs []string) (search.BulkStarted, error)
	StartBulkFromReader(ctx context.Context, r io.Reader) (search.BulkStarted, error)
	Progress(ctx context.Context, sessionID string) (models.Progress, error)
	Results(ctx context.Context, sessionID string) ([]models.SearchResultRecord, error)
	Export(ctx context.Context, sessionID, format string, w io.Writer) error
	SiteStatus(ctx context.Context) []models.SiteStatus
}

// Options configures the router.
type Options struct {
	// Gatherer backs /metrics; the route is omitted when nil.
	Gatherer prometheus.Gatherer
	Logger   *slog.Logger
}

type handler struct {
	svc    Service
	logger *slog.Logger
}

// NewRouter builds the gin engine with every route registered.
func NewRouter(svc Service, opts Options) *gin.Engine {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	h := &handler{svc: svc, logger: logger}

	r := gin.New()
	r.Use(requestLogger(logger), recovery(logger))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if opts.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})))
	}

	apiGroup := r.Group("/api")
	{
		searchGroup := apiGroup.Group("/search")
		searchGroup.POST("/single", h.searchSingle)
		searchGroup.POST("/bulk", h.searchBulk)
		searchGroup.POST("/upload", limitBody(MaxUploadBytes+64<<10), h.upload)
		searchGroup.GET("/progress/:sessionId", h.progress)
		searchGroup.GET("/results/:sessionId", h.results)
		searchGroup.GET("/export/:sessionId", h.export)

		apiGroup.GET("/sites/status", h.siteStatus)
	}

	r.NoRoute(func(c *gin.Context) {
		failure(c, http.StatusNotFound, "Not found")
	})
	return r
}
