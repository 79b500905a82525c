package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"campusattend/internal/apperr"
	"campusattend/internal/attendance"
	"campusattend/internal/auth"
	"campusattend/internal/capture"
	"campusattend/internal/directory"
	"campusattend/internal/httpmiddleware"
	"campusattend/internal/identity"
	"campusattend/internal/stats"
)

// HealthCheck reports whether one dependency is reachable.
type HealthCheck func(ctx context.Context) bool

// Server holds the handlers' collaborators.
type Server struct {
	Sessions  *capture.Registry
	Ledger    *attendance.Ledger
	Stats     *stats.Aggregator
	Directory directory.Directory
	Signer    *auth.Signer
	Log       *zap.Logger
	Checks    map[string]HealthCheck
}

// Options tunes the router middleware.
type Options struct {
	CORSOrigins     []string
	RateLimitPerMin int
}

// NewRouter builds the gin engine with middleware and every route.
func NewRouter(s *Server, opts Options) *gin.Engine {
	if s.Log == nil {
		s.Log = zap.NewNop()
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(httpmiddleware.RequestLogger(s.Log, "/healthz", "/metrics"))
	r.Use(corsMiddleware(opts.CORSOrigins))
	r.Use(httpmiddleware.SecurityHeaders())
	if opts.RateLimitPerMin > 0 {
		r.Use(httpmiddleware.NewRateLimiter(opts.RateLimitPerMin).GinMiddleware())
	}

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/healthz", s.health)

	r.POST("/v1/kiosks/register", s.registerKiosk)
	r.POST("/v1/kiosks/refresh", s.refreshKiosk)

	v1 := r.Group("/v1", auth.KioskAuth(s.Signer))
	v1.POST("/sessions", s.createSession)
	v1.GET("/sessions/:id", s.getSession)
	v1.PUT("/sessions/:id/identifier", s.identify)
	v1.POST("/sessions/:id/start", s.start)
	v1.POST("/sessions/:id/cancel", s.cancel)
	v1.POST("/sessions/:id/reset", s.reset)
	v1.DELETE("/sessions/:id", s.closeSession)

	v1.GET("/attendance/users/:id", s.userHistory)
	v1.GET("/attendance/dates/:date", s.recordsByDate)
	v1.GET("/stats/daily", s.dailyStats)
	return r
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		AllowCredentials: true,
		MaxAge:           24 * time.Hour,
	}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cfg.AllowOriginFunc = func(string) bool { return true }
	} else {
		cfg.AllowOrigins = origins
	}
	return cors.New(cfg)
}

func (s *Server) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	out := gin.H{"status": "ok"}
	code := http.StatusOK
	for name, check := range s.Checks {
		ok := check(ctx)
		out[name] = ok
		if !ok {
			code = http.StatusServiceUnavailable
			out["status"] = "degraded"
		}
	}
	c.JSON(code, out)
}

func (s *Server) registerKiosk(c *gin.Context) {
	var req struct {
		KioskID string `json:"kiosk_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	tokens, err := s.Signer.Issue(req.KioskID, auth.RoleKiosk)
	if err != nil {
		s.Log.Error("token issue failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
		return
	}
	s.Log.Info("kiosk registered", zap.String("kiosk_id", req.KioskID))
	c.JSON(http.StatusCreated, tokens)
}

func (s *Server) refreshKiosk(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	tokens, err := s.Signer.Refresh(req.RefreshToken)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid refresh token"})
		return
	}
	c.JSON(http.StatusOK, tokens)
}

// writeError maps err to a status and a JSON body.
func writeError(c *gin.Context, err error) {
	code := apperr.HTTPStatus(err)
	kind := apperr.KindOf(err)
	if errors.Is(err, identity.ErrSuperseded) || errors.Is(err, capture.ErrCancelled) {
		code, kind = http.StatusConflict, apperr.KindConflict
	}
	_ = c.Error(err)
	c.JSON(code, gin.H{"error": err.Error(), "kind": kind})
}
