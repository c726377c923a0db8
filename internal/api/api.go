package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/andresuchdata/stockledger/internal/api/handlers"
	"github.com/andresuchdata/stockledger/internal/api/middleware"
	"github.com/andresuchdata/stockledger/internal/repository"
	"github.com/andresuchdata/stockledger/internal/service"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type Services struct {
	Store      repository.Store
	Catalog    *service.CatalogService
	Inventory  *service.InventoryService
	Production *service.ProductionService
	Reorder    *service.ReorderService

	ReorderDays      int
	ReorderThreshold decimal.Decimal
	Now              func() time.Time
}

func NewRouter(services *Services, allowedOrigins []string) *gin.Engine {
	router := gin.New()

	router.Use(middleware.RequestID())
	router.Use(middleware.Logger())
	router.Use(middleware.Recovery())
	defaultOrigins := []string{"http://localhost:3000", "http://127.0.0.1:3000"}
	corsConfig := cors.Config{
		AllowOrigins:     defaultOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.RequestIDHeader},
		ExposeHeaders:    []string{"Content-Length", "Content-Disposition", middleware.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(allowedOrigins) > 0 {
		normalizedOrigins, allowAll := normalizeAllowedOrigins(allowedOrigins)
		if allowAll {
			corsConfig.AllowOrigins = nil
			corsConfig.AllowOriginFunc = func(origin string) bool { return true }
		} else if len(normalizedOrigins) > 0 {
			corsConfig.AllowOrigins = normalizedOrigins
		}
	}
	router.Use(cors.New(corsConfig))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	apiGroup := router.Group("/api/v1")
	apiGroup.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	if services == nil {
		return router
	}

	if services.Catalog != nil && services.Production != nil {
		itemHandler := handlers.NewItemHandler(services.Catalog, services.Production)
		itemGroup := apiGroup.Group("/items")
		{
			itemGroup.GET("", itemHandler.ListItems)
			itemGroup.POST("", itemHandler.CreateItem)
			itemGroup.GET("/:id", itemHandler.GetItem)
			itemGroup.PUT("/:id", itemHandler.UpdateItem)
			itemGroup.DELETE("/:id", itemHandler.ArchiveItem)
			itemGroup.DELETE("/:id/retire", itemHandler.RetireItem)
			itemGroup.GET("/:id/recipe", itemHandler.GetRecipe)
			itemGroup.PUT("/:id/recipe", itemHandler.SetRecipe)
			itemGroup.GET("/:id/cost", itemHandler.GetCost)
			itemGroup.POST("/:id/moving-average", itemHandler.UpdateMovingAverage)
			itemGroup.GET("/:id/availability", itemHandler.CheckAvailability)
		}
	}

	if services.Inventory != nil {
		inventoryHandler := handlers.NewInventoryHandler(services.Inventory)
		purchaseGroup := apiGroup.Group("/purchases")
		{
			purchaseGroup.POST("", inventoryHandler.ReceivePurchase)
			purchaseGroup.GET("", inventoryHandler.ListPurchases)
			purchaseGroup.POST("/:id/void", inventoryHandler.VoidPurchase)
		}

		inventoryGroup := apiGroup.Group("/inventory")
		{
			inventoryGroup.GET("/summary", inventoryHandler.GetSummary)
			inventoryGroup.GET("/lots", inventoryHandler.ListLots)
			inventoryGroup.GET("/lots/expiring", inventoryHandler.ListExpiringLots)
			inventoryGroup.GET("/lots/:id", inventoryHandler.GetLot)
			inventoryGroup.PUT("/lots/:id", inventoryHandler.CorrectLot)
			inventoryGroup.POST("/waste", inventoryHandler.RecordWaste)
			inventoryGroup.GET("/waste", inventoryHandler.ListWaste)
		}

		apiGroup.GET("/production/recent", inventoryHandler.RecentAllocations)
		apiGroup.GET("/dashboard/stats", inventoryHandler.GetDashboardStats)
	}

	if services.Production != nil {
		productionHandler := handlers.NewProductionHandler(services.Production)
		productionGroup := apiGroup.Group("/production")
		{
			productionGroup.POST("", productionHandler.Produce)
			productionGroup.POST("/allocations/:id/revert", productionHandler.RevertAllocation)
			productionGroup.POST("/lots/:id/revert", productionHandler.RevertLot)
		}
	}

	if services.Reorder != nil {
		reorderHandler := handlers.NewReorderHandler(services.Reorder, services.ReorderDays, services.ReorderThreshold)
		apiGroup.GET("/reorder/recommendations", reorderHandler.GetRecommendations)
	}

	if services.Store != nil {
		auditHandler := handlers.NewAuditHandler(services.Store, services.Now)
		apiGroup.GET("/audit/export", auditHandler.Export)
	}

	return router
}

func normalizeAllowedOrigins(origins []string) ([]string, bool) {
	var (
		parsed   []string
		allowAll bool
	)
	for _, origin := range origins {
		parts := strings.Split(origin, ",")
		for _, part := range parts {
			trimmed := strings.TrimSpace(part)
			if trimmed == "" {
				continue
			}
			if trimmed == "*" {
				allowAll = true
				continue
			}
			parsed = append(parsed, trimmed)
		}
	}
	return parsed, allowAll
}
