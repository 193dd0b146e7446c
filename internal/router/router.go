// internal/router/router.go
package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/agribazaar/agribazaar-backend/internal/config"
	"github.com/agribazaar/agribazaar-backend/internal/handlers"
	"github.com/agribazaar/agribazaar-backend/internal/middleware"
	"github.com/agribazaar/agribazaar-backend/internal/services"
	"github.com/agribazaar/agribazaar-backend/internal/store"
	"github.com/agribazaar/agribazaar-backend/internal/utils"
)

// Initialize wires services, handlers, and middleware into the HTTP router.
// The notification service is returned so main can manage its lifecycle.
func Initialize(db *gorm.DB, cfg *config.Config) (*gin.Engine, *services.NotificationService) {
	utils.SetJWTSecret(cfg.JWT.SecretKey)

	sqlStore := store.NewSQLStore(db)

	notificationService := services.NewNotificationService(db, cfg)
	storageService, _ := services.NewStorageService(cfg)
	gateway := services.NewGatewayMux(cfg)

	authService := services.NewAuthService(db, cfg)
	productService := services.NewProductService(db)
	orderService := services.NewOrderService(sqlStore, notificationService)
	paymentService := services.NewPaymentService(sqlStore, gateway, cfg, notificationService)
	reviewService := services.NewReviewService(db, notificationService)
	adminService := services.NewAdminService(db)

	authHandler := handlers.NewAuthHandler(authService)
	productHandler := handlers.NewProductHandler(productService, storageService)
	orderHandler := handlers.NewOrderHandler(orderService)
	paymentHandler := handlers.NewPaymentHandler(paymentService)
	reviewHandler := handlers.NewReviewHandler(reviewService)
	adminHandler := handlers.NewAdminHandler(adminService, orderService)
	notificationHandler := handlers.NewNotificationHandler(notificationService)

	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.RequestLogger())
	r.Use(middleware.CORS(cfg.Server.AllowedOrigins))
	r.Use(middleware.GeneralRateLimit())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"version": "1.0.0",
		})
	})

	v1 := r.Group("/v1")
	{
		auth := v1.Group("/auth")
		auth.Use(middleware.AuthRateLimit())
		{
			auth.POST("/register", authHandler.Register)
			auth.POST("/login", authHandler.Login)
			auth.POST("/refresh", authHandler.RefreshToken)
			auth.GET("/me", middleware.AuthRequired(), authHandler.GetProfile)
			auth.PUT("/profile", middleware.AuthRequired(), authHandler.UpdateProfile)
			auth.PUT("/password", middleware.AuthRequired(), authHandler.ChangePassword)
		}

		products := v1.Group("/products")
		{
			products.GET("", productHandler.GetProducts)
			products.GET("/popular", productHandler.GetPopularProducts)
			products.GET("/:id", productHandler.GetProduct)
			products.GET("/:id/comments", reviewHandler.GetComments)
			products.GET("/:id/ratings", reviewHandler.GetRatings)

			reviews := products.Group("")
			reviews.Use(middleware.AuthRequired())
			{
				reviews.POST("/:id/comments", reviewHandler.AddComment)
				reviews.PUT("/:id/rating", reviewHandler.RateProduct)
				reviews.GET("/:id/rating", reviewHandler.GetMyRating)
			}

			protected := products.Group("")
			protected.Use(middleware.AuthRequired(), middleware.FarmerRequired())
			{
				protected.POST("", productHandler.CreateProduct)
				protected.PUT("/:id", productHandler.UpdateProduct)
				protected.DELETE("/:id", productHandler.DeleteProduct)
				protected.POST("/images", middleware.UploadRateLimit(), productHandler.UploadImage)
			}
		}

		comments := v1.Group("/comments")
		comments.Use(middleware.AuthRequired())
		{
			comments.PUT("/:id", reviewHandler.UpdateComment)
			comments.DELETE("/:id", reviewHandler.DeleteComment)
		}

		ratings := v1.Group("/ratings")
		ratings.Use(middleware.AuthRequired())
		{
			ratings.DELETE("/:id", reviewHandler.DeleteRating)
		}

		orders := v1.Group("/orders")
		orders.Use(middleware.AuthRequired())
		{
			orders.POST("", middleware.OrderRateLimit(), orderHandler.PlaceOrder)
			orders.GET("/my", orderHandler.GetMyOrders)
			orders.GET("/:id", orderHandler.GetOrder)
			orders.PUT("/:id/cancel", orderHandler.CancelOrder)
			orders.PUT("/:id/status", orderHandler.UpdateOrderStatus)
		}

		payments := v1.Group("/payments")
		payments.Use(middleware.AuthRequired())
		{
			payments.POST("/initiate", paymentHandler.InitiatePayment)
			payments.POST("/confirm", paymentHandler.ConfirmPayment)
			payments.GET("/history", paymentHandler.GetPaymentHistory)
		}

		farmer := v1.Group("/farmer")
		farmer.Use(middleware.AuthRequired(), middleware.FarmerRequired())
		{
			farmer.GET("/products", productHandler.GetMyProducts)
			farmer.GET("/orders", orderHandler.GetFarmerOrders)
			farmer.GET("/stats", productHandler.GetFarmerStats)
		}

		notifications := v1.Group("/notifications")
		notifications.Use(middleware.AuthRequired())
		{
			notifications.GET("", notificationHandler.GetNotifications)
			notifications.PUT("/:id/read", notificationHandler.MarkRead)
		}

		admin := v1.Group("/admin")
		admin.Use(middleware.AuthRequired(), middleware.AdminRequired())
		{
			admin.GET("/dashboard", adminHandler.GetDashboardStats)
			admin.GET("/users", adminHandler.GetUsers)
			admin.PUT("/users/:id/status", adminHandler.UpdateUserStatus)
			admin.GET("/orders", adminHandler.GetOrders)
		}
	}

	return r, notificationService
}
