package routes

import (
	"testing"

	"github.com/gin-gonic/gin"
)

func registeredRoutes(t *testing.T) map[string]bool {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	RegisterRoutes(r)

	routes := make(map[string]bool)
	for _, route := range r.Routes() {
		routes[route.Method+" "+route.Path] = true
	}
	return routes
}

func TestAdminViewsRegistered(t *testing.T) {
	routes := registeredRoutes(t)

	for _, want := range []string{
		"GET /api/admin/bookings",
		"GET /api/admin/payments",
		"GET /api/admin/refunds",
		"POST /api/admin/refunds/:id/process",
	} {
		if !routes[want] {
			t.Errorf("route admin manquante: %s", want)
		}
	}
}

func TestCallbackRoutesRegistered(t *testing.T) {
	routes := registeredRoutes(t)

	for _, want := range []string{
		"POST /api/payments/stk/callback/:reference",
		"GET /api/payments/pesapal/confirm",
		"GET /api/payments/pesapal/ipn",
		"POST /api/payments/refunds/callback/:reference",
		"POST /api/payments/refunds/timeout/:reference",
	} {
		if !routes[want] {
			t.Errorf("route de callback manquante: %s", want)
		}
	}
}

func TestMarkupRoutesRegistered(t *testing.T) {
	routes := registeredRoutes(t)

	for _, want := range []string{
		"POST /api/markups",
		"GET /api/markups",
		"GET /api/markups/:id/qr",
		"DELETE /api/markups/:id",
		"GET /api/book/:token",
		"POST /api/book/:token",
	} {
		if !routes[want] {
			t.Errorf("route markup manquante: %s", want)
		}
	}
}
