package network

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/parkpilot/server/internal/platform/logger"
	"github.com/parkpilot/server/internal/platform/metrics"
)

// RouterConfig collects everything the HTTP surface is built from.
type RouterConfig struct {
	BasePath    string // e.g. "/api/v1"
	CORSOrigins []string
	JWTSecret   string
	RateLimit   *RateLimiter // nil disables REST rate limiting
	API         *API
	Activity    *ActivityHandler
	Hub         *Hub
	Logger      *logger.Logger
}

// NewRouter builds the gin engine with every route mounted.
func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLogger(cfg.Logger))
	r.Use(cors.New(corsConfig(cfg.CORSOrigins)))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"clients": cfg.Hub.ClientCount(),
			"time":    time.Now().UTC().Format(time.RFC3339),
		})
	})
	r.GET("/metrics", gin.WrapF(metrics.Handler()))
	r.GET("/metrics/prometheus", gin.WrapF(metrics.PrometheusHandler()))
	r.GET("/ws", ServeWs(cfg.Hub, cfg.CORSOrigins))

	api := r.Group(cfg.BasePath)
	if cfg.RateLimit != nil {
		api.Use(RateLimit(cfg.RateLimit))
	}
	cfg.API.RegisterRoutes(api)
	if cfg.Activity != nil {
		cfg.Activity.RegisterRoutes(api)
	}

	admin := api.Group("/admin")
	admin.Use(AdminAuth(cfg.JWTSecret))
	cfg.API.RegisterAdminRoutes(admin)

	return r
}

func corsConfig(origins []string) cors.Config {
	c := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		c.AllowAllOrigins = true
	} else {
		c.AllowOrigins = origins
	}
	return c
}

// ServeWs upgrades the connection and starts the client pumps.
func ServeWs(hub *Hub, origins []string) gin.HandlerFunc {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(origins),
	}
	return func(c *gin.Context) {
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			hub.logger.Warn("websocket upgrade failed", "error", err)
			hub.metrics.RecordWSError()
			return
		}
		client := NewClient(hub, conn)
		client.Register()

		go client.WritePump()
		go client.ReadPump()
	}
}

func originChecker(origins []string) func(r *http.Request) bool {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		if o == "*" {
			return func(r *http.Request) bool { return true }
		}
		allowed[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || allowed[origin]
	}
}
