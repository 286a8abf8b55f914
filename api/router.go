// api/router.go
package api

import (
	"github.com/devadigapratham/pandaprint/api/handlers"
	"github.com/devadigapratham/pandaprint/bridge"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// SetupRouter sets up the API routes
func SetupRouter(b *bridge.Bridge, log zerolog.Logger) *gin.Engine {
	router := gin.New()

	// Create the handler
	handler := handlers.NewHandler(b, log)

	// Apply middleware
	router.Use(gin.Recovery(), handler.RequestLogger())

	// OctoPrint API, one instance per printer
	printer := router.Group("/:printer", handler.PrinterMiddleware())
	{
		printer.POST("/api/files/:location", handler.UploadFile)
		printer.GET("/api/job", handler.GetCurrentJob)
		printer.GET("/api/job/:id", handler.GetJob)
		printer.GET("/api/printer", handler.GetPrinter)
		printer.GET("/api/version", handler.GetVersion)
	}

	// Bridge-wide status
	router.GET("/status", handler.GetStatus)

	router.NoRoute(handler.NotFound)

	return router
}
