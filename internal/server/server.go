// Package server exposes the contract lifecycle and revenue reporting HTTP API.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/viewdeal/viewdeal/internal/config"
	"github.com/viewdeal/viewdeal/internal/contract"
	contractdomain "github.com/viewdeal/viewdeal/internal/contract/domain"
	"github.com/viewdeal/viewdeal/internal/observability"
	obslogger "github.com/viewdeal/viewdeal/internal/observability/logger"
	"github.com/viewdeal/viewdeal/internal/providers"
	"github.com/viewdeal/viewdeal/internal/revenue"
	revenuedomain "github.com/viewdeal/viewdeal/internal/revenue/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	config.Module,
	observability.Module,
	providers.Module,
	contract.Module,
	revenue.Module,
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(cfg config.Config, log *zap.Logger) *gin.Engine {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger(log))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(cfg config.Config, log *zap.Logger) *gin.Engine {
	return NewEngine(cfg, log)
}

func requestLogger(log *zap.Logger) gin.HandlerFunc {
	log = log.Named("http")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("took", time.Since(start)),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("error", c.Errors.Last().Error()))
		}
		reqLog := obslogger.WithContext(c.Request.Context(), log)
		if c.Writer.Status() >= http.StatusInternalServerError {
			reqLog.Error("request", fields...)
			return
		}
		reqLog.Info("request", fields...)
	}
}

type Server struct {
	engine      *gin.Engine
	cfg         config.Config
	log         *zap.Logger
	contractSvc contractdomain.Service
	ledger      revenuedomain.Ledger
}

type Params struct {
	fx.In

	Gin         *gin.Engine
	Cfg         config.Config
	Log         *zap.Logger
	ContractSvc contractdomain.Service
	Ledger      revenuedomain.Ledger
}

func NewServer(p Params) *Server {
	s := &Server{
		engine:      p.Gin,
		cfg:         p.Cfg,
		log:         p.Log.Named("server"),
		contractSvc: p.ContractSvc,
		ledger:      p.Ledger,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	v1 := s.engine.Group("/v1")

	contracts := v1.Group("/contracts")
	contracts.POST("", s.createContract)
	contracts.GET("/:id", s.getContract)
	contracts.POST("/:id/accept", s.acceptContract)
	contracts.POST("/:id/reject", s.rejectContract)
	contracts.POST("/:id/pay", s.payContract)
	contracts.POST("/:id/cancel", s.cancelContract)
	contracts.GET("/:id/revenue", s.contractRevenue)

	v1.GET("/licensors/:id/revenue", s.licensorRevenue)
	v1.GET("/licensees/:id/revenue", s.licenseeRevenue)
}

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}
