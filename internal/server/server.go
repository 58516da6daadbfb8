package server

import (
	"fmt"
	"os"
	"time"

	"github.com/ardiannugra/kelasin/config"
	"github.com/ardiannugra/kelasin/internal/gateway"
	"github.com/ardiannugra/kelasin/internal/handlers"
	"github.com/ardiannugra/kelasin/internal/middleware"
	"github.com/ardiannugra/kelasin/internal/notify"
	"github.com/ardiannugra/kelasin/internal/reconcile"
	"github.com/ardiannugra/kelasin/internal/sweeper"
	"github.com/gin-gonic/gin"
	"github.com/xendit/xendit-go/v6"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func Start() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %v", err)
	}

	db, err := config.InitDatabase(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %v", err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	var mailer notify.Mailer
	if smtp := notify.NewSMTPMailer(); smtp.IsConfigured() {
		mailer = smtp
	}
	dispatcher := notify.NewDispatcher(db, logger, mailer)
	engine := reconcile.NewEngine(db, logger, dispatcher)

	xenditCfg, err := config.LoadXenditConfig()
	if err != nil {
		return fmt.Errorf("failed to load xendit config: %v", err)
	}
	xenditClient, err := config.InitXenditClient(xenditCfg)
	if err != nil {
		return fmt.Errorf("failed to initialize xendit client: %v", err)
	}

	dokuCfg, err := config.LoadDokuConfig()
	if err != nil {
		return fmt.Errorf("failed to load doku config: %v", err)
	}

	registry := gateway.NewRegistry(
		gateway.NewDokuAdapter(dokuCfg.ClientID, dokuCfg.SecretKey, dokuCfg.NotifyPath),
		gateway.NewXenditAdapter(xenditCfg.CallbackToken),
	)

	expirySweeper := sweeper.New(db, engine, logger, 24*time.Hour)
	if err := expirySweeper.Start(); err != nil {
		return fmt.Errorf("failed to start payment sweeper: %v", err)
	}
	defer expirySweeper.Stop()

	r := gin.Default()

	setupRoutes(r, db, engine, registry, xenditClient)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	return r.Run(":" + port)
}

func setupRoutes(r *gin.Engine, db *gorm.DB, engine *reconcile.Engine, registry *gateway.Registry, xenditClient *xendit.APIClient) {
	r.Use(middleware.DatabaseMiddleware(db))
	r.Use(middleware.ReconcilerMiddleware(engine))
	r.Use(middleware.GatewayRegistryMiddleware(registry))
	r.Use(middleware.XenditMiddleware(xenditClient))

	public := r.Group("/v1")
	{
		public.POST("/register", handlers.Register)
		public.POST("/login", handlers.Login)

		coursePublic := public.Group("/courses")
		{
			coursePublic.GET("", handlers.ListCourses)
			coursePublic.GET("/:id", handlers.GetCourse)
		}

		categoryPublic := public.Group("/categories")
		{
			categoryPublic.GET("", handlers.ListCategories)
		}

		gatewayPublic := public.Group("/payments")
		{
			gatewayPublic.POST("/webhook/:provider", handlers.HandleGatewayWebhook)
			gatewayPublic.POST("/callback/:provider", handlers.HandleGatewayCallback)
		}
	}

	protected := r.Group("/v1")
	protected.Use(middleware.JWTAuthMiddleware())
	{
		protected.GET("/profile", handlers.GetProfile)

		courseProtected := protected.Group("/courses")
		{
			courseProtected.POST("", handlers.CreateCourse)
			courseProtected.PUT("/:id", handlers.UpdateCourse)
			courseProtected.DELETE("/:id", handlers.DeleteCourse)
		}

		categoryProtected := protected.Group("/categories")
		{
			categoryProtected.POST("", middleware.RequireRole("admin"), handlers.CreateCategory)
			categoryProtected.DELETE("/:id", middleware.RequireRole("admin"), handlers.DeleteCategory)
		}

		couponProtected := protected.Group("/coupons")
		{
			couponProtected.POST("", middleware.RequireRole("admin"), handlers.CreateCoupon)
			couponProtected.GET("", handlers.ListCoupons)
			couponProtected.POST("/claim", handlers.ClaimCoupon)
		}

		paymentProtected := protected.Group("/payments")
		{
			paymentProtected.POST("/checkout", handlers.CreateCheckout)
			paymentProtected.POST("/confirm", handlers.ConfirmPayment)
			paymentProtected.GET("/status/:referenceId", handlers.GetPaymentStatus)
			paymentProtected.POST("/verify", handlers.VerifyPayment)
			paymentProtected.POST("/refund", middleware.RequireRole("admin"), handlers.RefundPayment)
		}

		enrollmentProtected := protected.Group("/enrollments")
		{
			enrollmentProtected.GET("", handlers.ListMyEnrollments)
			enrollmentProtected.DELETE("/:enrollmentId", handlers.CancelMyEnrollment)
			enrollmentProtected.GET("/:enrollmentId/pass", handlers.GenerateEnrollmentPass)
			enrollmentProtected.POST("/validate", handlers.ValidateEnrollmentPass)
		}

		notificationProtected := protected.Group("/notifications")
		{
			notificationProtected.GET("", handlers.ListMyNotifications)
			notificationProtected.PUT("/:notificationId/read", handlers.MarkNotificationRead)
		}
	}
}
