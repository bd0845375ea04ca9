// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging/redaction, panic recovery, metrics,
// compression, CORS, security headers, authentication, idempotency, and rate
// limiting.
package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/tbourn/support-relay/docs"
	"github.com/tbourn/support-relay/internal/config"
	"github.com/tbourn/support-relay/internal/domain"
	"github.com/tbourn/support-relay/internal/http/handlers"
	"github.com/tbourn/support-relay/internal/http/middleware"
	"github.com/tbourn/support-relay/internal/services"
)

// StreamPath is where the STOMP-over-WebSocket endpoint is mounted.
const StreamPath = "/ws"

// Deps are the collaborators the router mounts. Stream may be nil, in which
// case StreamPath is not registered.
type Deps struct {
	Auth     *services.AuthService
	Rooms    *services.RoomService
	Messages *services.MessageService
	Resolver middleware.IdentityResolver
	Stream   http.Handler
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine and mounts the versioned API under cfg.APIBasePath.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. Access logging (redacting unless LOG_REDACT=off)
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Metrics
//  7. Compression (never on the WebSocket upgrade)
//  8. CORS and Security headers
//
// Protected groups then run Authenticate, then the idempotency validator
// (so a replay can bypass the limiter), then the rate limiter keyed by
// principal.
func RegisterRoutes(r *gin.Engine, cfg config.Config, d Deps) {
	r.HandleMethodNotAllowed = true

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured logging, with PII scrubbing by default
	if cfg.LogRedact {
		r.Use(middleware.RedactingLogger(middleware.RedactOptions{
			SkipPaths: []string{"/health", "/metrics"},
		}))
	} else {
		r.Use(middleware.Logger())
	}

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Global body size limit (1 MiB)
	r.Use(limitBody(1 << 20))

	// 6) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics(StreamPath))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 7) Compression
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{StreamPath, "/metrics"})))

	// 8) CORS posture (allow all if none configured) and security headers
	r.Use(corsMiddleware(cfg.CORS.AllowedOrigins)...)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		NoStore:      false,
		EnablePolicy: true,
		Expose:       []string{"ETag", handlers.HeaderReplayed},
	}))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Liveness/health
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	// API docs
	if cfg.SwaggerEnabled {
		docs.SwaggerInfo.BasePath = cfg.APIBasePath
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	// Stream endpoint authenticates inside the CONNECT frame.
	if d.Stream != nil {
		r.GET(StreamPath, gin.WrapH(d.Stream))
	}

	h := handlers.New(d.Auth, d.Rooms, d.Messages)
	h.MaxContentRunes = cfg.MaxContentRunes

	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByPrincipalOrIP())
	idem := middleware.IdempotencyValidator(middleware.IdempotencyOptions{MaxLen: 200}, d.Messages.HasReplay)

	api := groupWithPrefix(r, cfg.APIBasePath)
	{
		// Public: login is limited by client IP.
		api.POST("/users/login", rl.Handler(), h.LoginUser)
		api.POST("/operators/login", rl.Handler(), h.LoginOperator)

		authed := api.Group("", middleware.Authenticate(d.Resolver))

		users := authed.Group("/users", middleware.RequireRole(domain.RoleEndUser), rl.Handler())
		users.GET("/me", h.CurrentUser)
		users.GET("/room", h.MyRoom)

		rooms := authed.Group("/rooms")
		rooms.GET("/:id", rl.Handler(), h.EnterRoom)
		rooms.POST("/:id/read", rl.Handler(), h.MarkRead)
		rooms.GET("/:id/messages", rl.Handler(), h.ListMessages)
		rooms.POST("/:id/messages", idem, rl.Handler(), h.PostMessage)

		ops := authed.Group("/operators", middleware.RequireRole(domain.RoleOperator), rl.Handler())
		ops.GET("/me", h.CurrentOperator)
		ops.GET("/rooms", h.ListAllRooms)
		ops.GET("/rooms/unassigned", h.ListUnassignedRooms)
		ops.GET("/rooms/mine", h.ListMyRooms)
		ops.POST("/rooms/:id/assign", h.AssignRoom)
	}
}

// corsMiddleware returns the gin-contrib/cors handler plus, for an explicit
// allowlist, an echo of the matching Origin.
func corsMiddleware(origins []string) []gin.HandlerFunc {
	methods := []string{"GET", "POST", "OPTIONS"}
	headers := []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.HeaderIdempotencyKey, "If-None-Match"}
	expose := []string{"X-Request-ID", "Content-Length", "ETag", handlers.HeaderReplayed}

	if len(origins) == 0 {
		return []gin.HandlerFunc{
			// Force ACAO: * even for requests without an Origin header.
			func(c *gin.Context) {
				c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
				c.Next()
			},
			cors.New(cors.Config{
				AllowAllOrigins:  true,
				AllowMethods:     methods,
				AllowHeaders:     headers,
				ExposeHeaders:    expose,
				AllowCredentials: false, // must remain false with AllowAllOrigins
				MaxAge:           12 * time.Hour,
			}),
		}
	}

	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		allowed[o] = struct{}{}
	}
	return []gin.HandlerFunc{
		func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					h := c.Writer.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
			}
			c.Next()
		},
		cors.New(cors.Config{
			AllowOrigins:     origins,
			AllowMethods:     methods,
			AllowHeaders:     headers,
			ExposeHeaders:    expose,
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}),
	}
}

// limitBody returns a Gin middleware that caps the request body size for all
// endpoints to maxBytes using http.MaxBytesReader. Requests exceeding the cap
// will cause downstream body reads to error.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
