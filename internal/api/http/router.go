package http

import (
	"github.com/developer387/doorbell-app-sub000/internal/domain"
	"github.com/developer387/doorbell-app-sub000/internal/service"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func SetupRouter(
	tokens service.TokenParser,
	callController *CallController,
	accessController *AccessController,
	propertyController *PropertyController,
	allowOrigins []string,
) *gin.Engine {
	router := gin.Default()
	config := cors.DefaultConfig()
	if len(allowOrigins) == 0 {
		config.AllowAllOrigins = true
	} else {
		config.AllowOrigins = allowOrigins
		config.AllowCredentials = true
	}
	config.AllowHeaders = []string{
		"Authorization",
		"Content-Type",
		"Origin",
		"Accept",
	}
	config.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"}
	router.Use(cors.New(config))
	router.Use(Metrics())

	router.GET("/healthz", func(ctx *gin.Context) {
		ctx.JSON(200, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api")
	auth := Auth(tokens)

	if callController != nil {
		api.POST("/calls", callController.CreateCall)

		calls := api.Group("/calls/:callID", auth, RequireCall())
		calls.GET("", callController.GetCall)
		calls.GET("/ws", callController.Watch)
		calls.POST("/answer", RequireRole(domain.RoleOwner), callController.WriteAnswer)
		calls.POST("/candidates", callController.AddCandidate)
		calls.PATCH("/status", callController.SetStatus)

		if accessController != nil {
			calls.POST("/shared-locks", RequireRole(domain.RoleOwner), accessController.ShareLocks)
			locks := calls.Group("/locks/:deviceID", RequireRole(domain.RoleGuest))
			locks.POST("/unlock", accessController.Unlock)
			locks.POST("/lock", accessController.Lock)
			locks.POST("/code", accessController.IssueTemporaryCode)
		}
	}

	if accessController != nil {
		api.POST("/properties/:propertyID/access", accessController.SubmitPIN)
	}

	if propertyController != nil {
		api.POST("/properties", propertyController.CreateProperty)

		properties := api.Group("/properties/:propertyID", auth, RequireProperty())
		properties.GET("", propertyController.GetProperty)
		properties.GET("/guests", propertyController.ListGuests)
		properties.POST("/guests", propertyController.CreateGuest)
		properties.PUT("/guests/:guestID", propertyController.UpdateGuest)
		properties.POST("/guests/:guestID/pin", propertyController.RegeneratePIN)
		properties.GET("/locks", propertyController.ListLocks)
		properties.PUT("/locks/:deviceID", propertyController.UpsertLock)
		properties.DELETE("/locks/:deviceID", propertyController.RemoveLock)
	}

	return router
}
