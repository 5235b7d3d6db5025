// Package httpapi is the docsync server's HTTP surface: cursored pull,
// ETag-guarded single-file read/write, gin route groups with a
// ulule/limiter/v3-backed rate limiter in front of the /files group.
package httpapi

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/ulule/limiter/v3"
	mgin "github.com/ulule/limiter/v3/drivers/middleware/gin"
	"github.com/ulule/limiter/v3/drivers/store/memory"

	"github.com/cloudtext/docsync/internal/store"
)

// Config wires the HTTP surface's collaborators.
type Config struct {
	Store     *store.Store
	Logger    *slog.Logger
	RateLimit string // ulule/limiter formatted rate, e.g. "100-M"
}

// NewRouter builds the gin engine exposing the sync, get, and put routes.
func NewRouter(cfg Config) http.Handler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	if cfg.RateLimit == "" {
		cfg.RateLimit = "100-M"
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger(cfg.Logger))

	h := &handlers{store: cfg.Store, logger: cfg.Logger}

	files := r.Group("/files")
	files.Use(rateLimiter(cfg.RateLimit))
	{
		files.GET("/sync", h.pull)
		files.GET("/:id", h.get)
		files.PUT("/:id", h.put)
	}

	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })

	return r
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		logger.Info("http request",
			slog.String("method", c.Request.Method),
			slog.String("path", c.Request.URL.Path),
			slog.Int("status", c.Writer.Status()),
		)
	}
}

var rateLimitStore = memory.NewStore()

// rateLimiter returns a 429 with a JSON body and a Retry-After header once
// the configured rate is exceeded.
func rateLimiter(formattedRate string) gin.HandlerFunc {
	rate, err := limiter.NewRateFromFormatted(formattedRate)
	if err != nil {
		panic(err)
	}

	lim := limiter.New(rateLimitStore, rate)

	return mgin.NewMiddleware(lim,
		mgin.WithLimitReachedHandler(func(c *gin.Context) {
			c.Header("Retry-After", "60")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded",
			})
		}),
	)
}
