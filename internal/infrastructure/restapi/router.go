package restapi

import (
	"net/http/pprof"

	"atm_bridge/internal/infrastructure/configloader"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"
)

// RouterOptions carries the optional parts of the router.
type RouterOptions struct {
	Logger   *zap.Logger
	Gatherer prometheus.Gatherer
	Swagger  configloader.SwaggerConfig
	Pprof    bool
}

// SetupRouter builds the gin engine with the ATM API, metrics and the optional debug routes.
func SetupRouter(atmHandler *ATMHandler, opts RouterOptions) *gin.Engine {
	router := gin.New()

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization"}
	router.Use(cors.New(corsConfig))

	if opts.Logger != nil {
		router.Use(ZapLoggerMiddleware(opts.Logger))
	}
	router.Use(gin.Recovery())

	v1 := router.Group("/api/v1")
	{
		atm := v1.Group("/atm")
		atm.GET("", atmHandler.GetATMHandler)
		atm.POST("/connect", atmHandler.ConnectHandler)
		atm.POST("/refresh", atmHandler.RefreshHandler)
		atm.POST("/deposit", atmHandler.DepositHandler)
		atm.POST("/withdraw", atmHandler.WithdrawHandler)
		atm.POST("/multiply", atmHandler.MultiplyHandler)
		atm.POST("/transfer-ownership", atmHandler.TransferOwnershipHandler)
	}

	if opts.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})))
	}

	if opts.Swagger.Enabled {
		// The UI reads the hand-written OpenAPI file instead of swag-generated docs.
		router.StaticFile("/docs/swagger.yaml", opts.Swagger.SpecFile)
		swaggerURL := ginSwagger.URL("/docs/swagger.yaml")
		router.GET(opts.Swagger.Path+"/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, swaggerURL))
	}

	if opts.Pprof {
		pprofRouter := router.Group("/debug/pprof")
		{
			pprofRouter.GET("/", gin.WrapF(pprof.Index))
			pprofRouter.GET("/cmdline", gin.WrapF(pprof.Cmdline))
			pprofRouter.GET("/profile", gin.WrapF(pprof.Profile))
			pprofRouter.POST("/symbol", gin.WrapF(pprof.Symbol))
			pprofRouter.GET("/symbol", gin.WrapF(pprof.Symbol))
			pprofRouter.GET("/trace", gin.WrapF(pprof.Trace))
			pprofRouter.GET("/allocs", gin.WrapH(pprof.Handler("allocs")))
			pprofRouter.GET("/goroutine", gin.WrapH(pprof.Handler("goroutine")))
			pprofRouter.GET("/heap", gin.WrapH(pprof.Handler("heap")))
		}
	}

	return router
}
