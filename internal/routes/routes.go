package routes

import (
	"kodisha_back_end/internal/handlers/admin"
	"kodisha_back_end/internal/handlers/booking"
	"kodisha_back_end/internal/handlers/host"
	"kodisha_back_end/internal/handlers/listing"
	"kodisha_back_end/internal/handlers/payement"
	"kodisha_back_end/internal/handlers/user"
	"kodisha_back_end/internal/middleware"

	"github.com/gin-gonic/gin"
)

func RegisterRoutes(r *gin.Engine) {
	api := r.Group("/api")
	api.Use(middleware.APIRateLimit())

	// --- Authentification ---
	auth := api.Group("/auth")
	auth.POST("/register", user.Register)
	auth.POST("/login", middleware.LoginRateLimit(), user.Login)

	// --- Profil ---
	me := api.Group("/me", middleware.AuthRequired())
	me.GET("", user.GetProfile)
	me.PUT("", user.UpdateProfile)

	// --- Catalogue public ---
	api.GET("/properties", listing.GetProperties)
	api.GET("/cars", listing.GetCars)

	// --- Annonces (hôtes) ---
	listings := api.Group("/listings", middleware.AuthRequired(), middleware.RequireHost)
	listings.POST("/properties", listing.CreateProperty)
	listings.POST("/cars", listing.CreateCar)
	listings.DELETE("/:kind/:id", listing.DeactivateListing)

	// --- Réservations ---
	bookings := api.Group("/bookings", middleware.AuthRequired())
	bookings.POST("", booking.CreateBooking)
	bookings.GET("", booking.GetMyBookings)
	bookings.POST("/:kind/:id/cancel", booking.CancelBooking)

	// État des lieux
	bookings.POST("/:kind/:id/checklist", booking.CreateChecklistItems)
	bookings.GET("/:kind/:id/checklist", booking.GetChecklist)
	bookings.POST("/:kind/:id/checklist/:item_id/complete", booking.CompleteChecklistItem)
	bookings.POST("/:kind/:id/checkin", booking.CheckIn)
	bookings.POST("/:kind/:id/checkout", booking.CheckOut)

	// --- Liens de réservation revendeur ---
	markups := api.Group("/markups", middleware.AuthRequired(), middleware.RequireHost)
	markups.POST("", booking.CreateMarkup)
	markups.GET("", booking.GetMyMarkups)
	markups.GET("/:id/qr", booking.MarkupQRCode)
	markups.DELETE("/:id", booking.DeactivateMarkup)

	// Résolution publique d'un lien partagé ; réserver exige un compte
	api.GET("/book/:token", booking.ResolveMarkupLink)
	api.POST("/book/:token", middleware.AuthRequired(), booking.BookViaMarkup)

	// --- Paiements ---
	pay := api.Group("/payments")

	initiate := pay.Group("", middleware.AuthRequired(), middleware.CheckoutRateLimit())
	initiate.POST("/stk", payement.InitiateSTKPush)
	initiate.POST("/pesapal", payement.PesapalCheckout)

	// Callbacks passerelle : ni auth ni rate limit (groupe hors du limiteur
	// par IP), la corrélation passe par la référence serveur dans l'URL
	callbacks := r.Group("/api/payments")
	callbacks.POST("/stk/callback/:reference", payement.STKCallback)
	callbacks.GET("/pesapal/confirm", payement.PesapalConfirm)
	callbacks.GET("/pesapal/ipn", payement.PesapalIPN)
	callbacks.POST("/refunds/callback/:reference", payement.RefundCallback)
	callbacks.POST("/refunds/timeout/:reference", payement.RefundTimeout)

	// --- Remboursements (locataires) ---
	refunds := api.Group("/refunds", middleware.AuthRequired())
	refunds.POST("", payement.RequestRefund)
	refunds.GET("", payement.GetUserRefunds)

	// --- Dashboard hôte ---
	hostGroup := api.Group("/host", middleware.AuthRequired(), middleware.RequireHost)
	hostGroup.GET("/bookings", host.GetHostBookings)
	hostGroup.GET("/dashboard/ws", host.DashboardWebSocket)

	// --- Back-office admin ---
	adminGroup := api.Group("/admin", middleware.AuthRequired(), middleware.RequireAdmin)
	adminGroup.GET("/bookings", booking.GetAllBookings)
	adminGroup.GET("/payments", payement.GetAllPayments)
	adminGroup.GET("/refunds", payement.GetAllRefunds)
	adminGroup.POST("/refunds/:id/process", payement.ProcessRefund)
	adminGroup.POST("/comms/sms", admin.BulkSMS)
	adminGroup.POST("/comms/email", admin.BulkEmail)
	adminGroup.GET("/audit-logs", admin.GetAuditLogs)
	adminGroup.GET("/audit-logs/:resource/:resource_id", admin.GetAuditLogsByResource)
}
