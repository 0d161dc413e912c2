package api

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
)

// NewServer creates a new HTTP server with all routes configured
func NewServer(handler *Handler) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		Formatter: func(param gin.LogFormatterParams) string {
			return fmt.Sprintf("%s - [%s] \"%s %s %s %d %s \"%s\" %s\"\n",
				param.ClientIP,
				param.TimeStamp.Format(time.RFC3339),
				param.Method,
				param.Path,
				param.Request.Proto,
				param.StatusCode,
				param.Latency,
				param.Request.UserAgent(),
				param.ErrorMessage,
			)
		},
		SkipPaths: []string{"/health"},
	}))

	r.Use(gin.Recovery())

	setupRoutes(r, handler)

	return r
}

func setupRoutes(r *gin.Engine, handler *Handler) {
	r.GET("/feeds/:id", handler.GetFeedRSS)

	r.GET("/health", handler.GetHealth)
	r.GET("/stats", handler.GetStats)

	api := r.Group("/api")
	{
		api.GET("/feeds", handler.APIListFeeds)
		api.POST("/feeds", handler.APISubscribe)
		api.GET("/feeds/:id", handler.APIGetFeedDetails)
		api.PATCH("/feeds/:id", handler.APIUpdateFeed)
		api.DELETE("/feeds/:id", handler.APIDeleteFeed)
		api.GET("/feeds/:id/items", handler.APIListItems)
		api.POST("/feeds/:id/refresh", handler.APIRefreshFeed)
		api.POST("/parse", handler.APIParseFeed)
	}

	r.GET("/favicon.ico", func(c *gin.Context) {
		c.Status(204)
	})
}
