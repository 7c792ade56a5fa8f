package server

import (
	"net/http"
	"time"

	mid "github.com/ndltd-tw/papergraph/internal/server/middleware"
	"github.com/ndltd-tw/papergraph/internal/server/routes"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func RegisterRoutes(e *echo.Echo, requestTimeout time.Duration) {
	// Health check route
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// Summaries stream for as long as the model writes, so only the
	// document and stats routes get a deadline.
	var deadline []echo.MiddlewareFunc
	if requestTimeout > 0 {
		deadline = append(deadline, middleware.ContextTimeout(requestTimeout))
	}

	apiRoutes := e.Group("/api/v1", mid.AuthMiddleware)

	// Document routes
	documentRoutes := apiRoutes.Group("/document", deadline...)
	documentRoutes.GET("/", routes.GetDocumentHandler)
	documentRoutes.GET("/similarity", routes.GetSimilarityNetworkHandler)
	documentRoutes.GET("/related", routes.GetRelatedDocumentsHandler)
	documentRoutes.GET("/title", routes.SearchTitleHandler)

	// Stats routes
	statsRoutes := apiRoutes.Group("/stats", deadline...)
	statsRoutes.GET("/top_field", routes.GetTopFieldCountsHandler)
	statsRoutes.GET("/institution_department", routes.GetInstitutionDepartmentHandler)
	statsRoutes.GET("/total", routes.GetTotalDocumentsHandler)

	// GenAI routes
	apiRoutes.GET("/genai/summary", routes.GetSummaryHandler)
}
