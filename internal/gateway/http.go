package gateway

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	ginprom "github.com/zsais/go-gin-prometheus"
	"golang.org/x/time/rate"
	"tinyex.com/pkg/middleware"
	"tinyex.com/pkg/ratelimit"
)

type Config struct {
	Rate    float64 // requests per second per client and route
	Burst   int
	Metrics bool // request metrics and /metrics
}

// NewRouter wires the read API and, when ws is non-nil, the market-data
// websocket. The rate limiter janitor stops with ctx.
func NewRouter(ctx context.Context, h *Handler, ws http.Handler, cfg Config) *gin.Engine {
	if cfg.Rate <= 0 {
		cfg.Rate = 50
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 100
	}
	store := ratelimit.NewStore(rate.Limit(cfg.Rate), cfg.Burst, 10*time.Minute)
	store.StartJanitor(ctx, time.Minute)

	r := gin.New()
	if cfg.Metrics {
		p := ginprom.NewPrometheus("tinyex")
		p.Use(r)
	}
	r.Use(
		middleware.ReqID(),
		cors.Default(),
		middleware.Recover(),
		middleware.RateLimit(store),
	)

	api := r.Group("/api")
	{
		api.GET("/instruments", h.Instruments)
		api.GET("/quotes/:ticker", h.Quote)
		api.GET("/trades/:ticker", h.Trades)
		api.GET("/depth/:ticker", h.Depth)
		api.GET("/accounts/:owner", h.Account)
	}
	if ws != nil {
		r.GET("/ws", gin.WrapH(ws))
	}
	return r
}

func NewServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}
}
