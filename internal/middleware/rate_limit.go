package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"kodisha_back_end/internal/database"

	"github.com/gin-gonic/gin"
)

const (
	// Limites par endpoint
	LoginMaxAttempts    = 5
	CheckoutMaxAttempts = 10 // initiations de paiement par utilisateur
	APIMaxRequests      = 100

	// Durées de cooldown
	LoginCooldown    = 15 * time.Minute
	CheckoutCooldown = 5 * time.Minute
	APICooldown      = 1 * time.Minute
)

// LoginRateLimit limite les tentatives de connexion par email
func LoginRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Lire le body sans le consommer
		bodyBytes, _ := io.ReadAll(c.Request.Body)

		var input struct {
			Email string `json:"email"`
		}

		if err := json.Unmarshal(bodyBytes, &input); err != nil || input.Email == "" {
			c.Next()
			return
		}

		// Remettre le body pour les handlers suivants
		c.Request.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))

		ctx := context.Background()
		key := "login_attempts:" + input.Email

		// Vérifier si l'utilisateur est en cooldown
		cooldownKey := "login_cooldown:" + input.Email
		if database.Redis.Exists(ctx, cooldownKey).Val() > 0 {
			ttl := database.Redis.TTL(ctx, cooldownKey).Val()
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":       fmt.Sprintf("Trop de tentatives échouées. Réessayez dans %d minutes", int(ttl.Minutes())),
				"retry_after": int(ttl.Seconds()),
			})
			c.Abort()
			return
		}

		attempts, _ := database.Redis.Get(ctx, key).Int()
		if attempts >= LoginMaxAttempts {
			database.Redis.Set(ctx, cooldownKey, "1", LoginCooldown)
			database.Redis.Del(ctx, key)

			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":       fmt.Sprintf("Trop de tentatives échouées. Compte bloqué pendant %d minutes", int(LoginCooldown.Minutes())),
				"retry_after": int(LoginCooldown.Seconds()),
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

// RecordLoginFailure incrémente le compteur de tentatives échouées
func RecordLoginFailure(email string) {
	ctx := context.Background()
	key := "login_attempts:" + email
	pipe := database.Redis.Pipeline()
	pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, LoginCooldown)
	pipe.Exec(ctx)
}

// ResetLoginAttempts remet le compteur à zéro après un login réussi
func ResetLoginAttempts(email string) {
	ctx := context.Background()
	database.Redis.Del(ctx, "login_attempts:"+email)
}

// CheckoutRateLimit limite les initiations de paiement par utilisateur.
// Les callbacks passerelle ne passent JAMAIS par ce middleware : une
// passerelle qui relivre ne doit pas être bloquée.
func CheckoutRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetString("user_id")
		if userID == "" {
			c.Next()
			return
		}

		ctx := context.Background()
		key := "checkout_attempts:" + userID

		pipe := database.Redis.Pipeline()
		incr := pipe.Incr(ctx, key)
		pipe.Expire(ctx, key, CheckoutCooldown)
		if _, err := pipe.Exec(ctx); err == nil && incr.Val() > CheckoutMaxAttempts {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error": "Trop d'initiations de paiement, réessayez dans quelques minutes",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

// APIRateLimit limite le nombre de requêtes par IP sur les endpoints généraux
func APIRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := context.Background()
		key := "api_rate:" + c.ClientIP()

		pipe := database.Redis.Pipeline()
		incr := pipe.Incr(ctx, key)
		pipe.Expire(ctx, key, APICooldown)
		if _, err := pipe.Exec(ctx); err == nil && incr.Val() > APIMaxRequests {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error": "Trop de requêtes, ralentissez",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}
