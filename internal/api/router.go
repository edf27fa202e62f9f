package api

import (
	"github.com/gin-gonic/gin"

	"github.com/calvin/shopsearch/internal/api/handler"
	"github.com/calvin/shopsearch/internal/api/middleware"
	"github.com/calvin/shopsearch/internal/logger"
	"github.com/calvin/shopsearch/internal/repository"
	"github.com/calvin/shopsearch/internal/service"
)

// RouterDeps bundles everything the router needs.
type RouterDeps struct {
	SearchService  *service.SearchService
	FacetService   *service.FacetService
	ProductService *service.ProductService
	IndexerService *service.IndexerService
	CategoryRepo   *repository.CategoryRepository
	Logger         *logger.Logger
	Mode           string
	CORS           middleware.CORSConfig
}

// SetupRouter configures the Gin router with all routes
func SetupRouter(deps *RouterDeps) *gin.Engine {
	switch deps.Mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(middleware.LoggerMiddleware(deps.Logger))
	r.Use(middleware.CORS(deps.CORS))

	healthHandler := handler.NewHealthHandler()
	searchHandler := handler.NewSearchHandler(deps.SearchService)
	catalogHandler := handler.NewCatalogHandler(deps.SearchService, deps.FacetService)
	productHandler := handler.NewProductHandler(deps.ProductService)
	categoryHandler := handler.NewCategoryHandler(deps.CategoryRepo)

	// Health check
	r.GET("/health", healthHandler.Health)

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		// Search
		v1.POST("/search", searchHandler.Search)

		// Catalog browsing
		v1.GET("/catalog/products", catalogHandler.ListProducts)
		v1.GET("/catalog/filters", catalogHandler.Facets)

		// Products
		v1.GET("/products", catalogHandler.ListProducts)
		v1.POST("/products", productHandler.Create)
		v1.GET("/products/:id", productHandler.Get)
		v1.PUT("/products/:id", productHandler.Update)
		v1.DELETE("/products/:id", productHandler.Delete)
		v1.POST("/products/:id/variants/generate", productHandler.GenerateVariants)
		v1.POST("/products/:id/images", productHandler.UploadImage)
		v1.DELETE("/products/:id/images/:imageID", productHandler.DeleteImage)

		// Categories
		v1.GET("/categories", categoryHandler.List)
		v1.POST("/categories", categoryHandler.Create)
		v1.GET("/categories/:id", categoryHandler.Get)
		v1.PUT("/categories/:id", categoryHandler.Update)
		v1.DELETE("/categories/:id", categoryHandler.Delete)

		// Maintenance
		if deps.IndexerService != nil {
			adminHandler := handler.NewAdminHandler(deps.IndexerService)
			v1.POST("/admin/reindex", adminHandler.Reindex)
		}
	}

	return r
}
