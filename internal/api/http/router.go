package http

import (
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

type RouterOptions struct {
	AllowOrigins   []string
	MetricsPath    string
	MetricsHandler http.Handler
}

func SetupRouter(relayController *RelayController, opts RouterOptions) *gin.Engine {
	router := gin.Default()
	config := cors.DefaultConfig()
	config.AllowOrigins = opts.AllowOrigins
	if len(config.AllowOrigins) == 0 {
		config.AllowAllOrigins = true
	}
	config.AllowHeaders = []string{
		"Content-Type",
		"Origin",
		"Accept",
	}
	config.AllowMethods = []string{"GET", "POST", "HEAD", "OPTIONS"}
	router.Use(cors.New(config))
	router.GET("/healthz", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	if opts.MetricsHandler != nil {
		path := opts.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		router.GET(path, gin.WrapH(opts.MetricsHandler))
	}

	if relayController != nil {
		signal := router.Group("/signal")
		signal.POST("", relayController.Publish)
		signal.GET("", relayController.Poll)
		signal.GET("/ws", relayController.Stream)
	}

	return router
}
