package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/careplix/opdwallet/internal/category"
	"github.com/careplix/opdwallet/internal/category/registry"
	"github.com/careplix/opdwallet/internal/clock"
	"github.com/careplix/opdwallet/internal/config"
	"github.com/careplix/opdwallet/internal/coverage"
	coveragedomain "github.com/careplix/opdwallet/internal/coverage/domain"
	"github.com/careplix/opdwallet/internal/enrollment"
	"github.com/careplix/opdwallet/internal/observability"
	obsmiddleware "github.com/careplix/opdwallet/internal/observability/logger"
	obsmetrics "github.com/careplix/opdwallet/internal/observability/metrics"
	obstracing "github.com/careplix/opdwallet/internal/observability/tracing"
	"github.com/careplix/opdwallet/internal/planoverride"
	planoverridedomain "github.com/careplix/opdwallet/internal/planoverride/domain"
	"github.com/careplix/opdwallet/internal/policy"
	"github.com/careplix/opdwallet/internal/wallet"
	walletdomain "github.com/careplix/opdwallet/internal/wallet/domain"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	config.Module,
	fx.Provide(registerGin),
	category.Module,
	policy.Module,
	enrollment.Module,
	coverage.Module,
	planoverride.Module,
	wallet.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine) {
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

type Server struct {
	engine      *gin.Engine
	cfg         config.Config
	db          *gorm.DB
	genID       *snowflake.Node
	clock       clock.Clock
	categories  *registry.Registry
	coverageSvc coveragedomain.Service
	overrideSvc planoverridedomain.Service
	walletSvc   walletdomain.Service
	obsMetrics  *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin         *gin.Engine
	Cfg         config.Config
	DB          *gorm.DB
	GenID       *snowflake.Node
	Clock       clock.Clock
	Categories  *registry.Registry
	CoverageSvc coveragedomain.Service
	OverrideSvc planoverridedomain.Service
	WalletSvc   walletdomain.Service
	ObsMetrics  *obsmetrics.Metrics `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:      p.Gin,
		cfg:         p.Cfg,
		db:          p.DB,
		genID:       p.GenID,
		clock:       p.Clock,
		categories:  p.Categories,
		coverageSvc: p.CoverageSvc,
		overrideSvc: p.OverrideSvc,
		walletSvc:   p.WalletSvc,
		obsMetrics:  p.ObsMetrics,
	}

	svc.RegisterAPIRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) RegisterAPIRoutes() {
	v1 := s.engine.Group("/v1")

	// -------- Categories --------
	v1.GET("/categories", s.ListCategories)
	v1.GET("/categories/:id", s.GetCategoryByID)

	// -------- Coverage Matrix --------
	v1.PUT("/policies/:policy_id/coverage/:plan_version", s.PutCoverageVersion)
	v1.GET("/policies/:policy_id/coverage/:plan_version", s.GetCoverageVersion)
	v1.GET("/policies/:policy_id/coverage", s.ListCoverageVersions)
	v1.POST("/coverage/resolve", s.ResolveCoverage)

	// -------- Plan Version Override --------
	v1.PUT("/policies/:policy_id/plan-version-override", s.PutPlanVersionOverride)
	v1.GET("/policies/:policy_id/plan-version-override", s.GetPlanVersionOverride)
	v1.DELETE("/policies/:policy_id/plan-version-override", s.ClearPlanVersionOverride)

	// -------- Wallet Ledger --------
	v1.POST("/wallet/debit", s.DebitWallet)
	v1.POST("/wallet/credit", s.CreditWallet)
	v1.POST("/wallet/transactions/:id/reverse", s.ReverseWalletTransaction)
	v1.GET("/wallet/balance", s.GetWalletBalance)
	v1.GET("/wallet/transactions", s.ListWalletTransactions)
	v1.POST("/wallet/balance/rebuild", s.RebuildWalletBalance)
}
