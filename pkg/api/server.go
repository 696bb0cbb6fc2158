package api

import (
	"context"
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
	"mediapull/pkg/downloader"
	"mediapull/pkg/logger"
	"mediapull/pkg/progress"
)

var apiLogger = logger.Get("API")

// Pipeline is the download pipeline the handlers drive.
type Pipeline interface {
	FetchMetadata(ctx context.Context, url string) (*downloader.Metadata, error)
	Download(ctx context.Context, req downloader.Request, relay *progress.Relay) (*downloader.Artifact, error)
}

type Options struct {
	AllowOrigins  []string
	RatePerSecond float64
	RateBurst     int
}

// Server owns the HTTP surface: metadata preview, downloads and progress
// streams.
type Server struct {
	pipeline     Pipeline
	hub          *progress.Hub
	limiter      *rate.Limiter
	allowOrigins []string
	upgrader     websocket.Upgrader
}

func New(pipeline Pipeline, hub *progress.Hub, opts Options) *Server {
	limit := rate.Inf
	if opts.RatePerSecond > 0 {
		limit = rate.Limit(opts.RatePerSecond)
	}
	burst := opts.RateBurst
	if burst <= 0 {
		burst = 1
	}

	s := &Server{
		pipeline:     pipeline,
		hub:          hub,
		limiter:      rate.NewLimiter(limit, burst),
		allowOrigins: opts.AllowOrigins,
	}
	s.upgrader = websocket.Upgrader{CheckOrigin: s.checkOrigin}
	return s
}

// Router builds the gin engine with every route and middleware attached.
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(requestLogger(), gin.Recovery())
	router.Use(cors.New(s.corsConfig()))

	router.GET("/metadata", s.getMetadataHandler)
	router.GET("/download", rateLimit(s.limiter), s.downloadHandler)
	router.GET("/progress/:id", s.progressStreamHandler)
	router.GET("/progress/:id/ws", s.progressSocketHandler)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	return router
}

func (s *Server) corsConfig() cors.Config {
	config := cors.DefaultConfig()
	config.AllowMethods = []string{"GET", "OPTIONS"}
	config.AllowHeaders = []string{"Content-Type", "Authorization"}
	config.ExposeHeaders = []string{"Content-Disposition", "Content-Length", downloadIDHeader}

	if len(s.allowOrigins) == 0 || containsWildcard(s.allowOrigins) {
		config.AllowAllOrigins = true
	} else {
		config.AllowOrigins = s.allowOrigins
	}
	return config
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(s.allowOrigins) == 0 || containsWildcard(s.allowOrigins) {
		return true
	}
	for _, allowed := range s.allowOrigins {
		if allowed == origin {
			return true
		}
	}
	return false
}

func containsWildcard(origins []string) bool {
	for _, o := range origins {
		if o == "*" {
			return true
		}
	}
	return false
}
