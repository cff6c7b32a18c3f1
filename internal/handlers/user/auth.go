package user

import (
	"log"
	"net/http"
	"strings"
	"time"

	"kodisha_back_end/internal/cache"
	"kodisha_back_end/internal/database"
	"kodisha_back_end/internal/middleware"
	"kodisha_back_end/internal/models"
	"kodisha_back_end/internal/utils"

	"github.com/gin-gonic/gin"
	"github.com/gocql/gocql"
	"github.com/google/uuid"
)

// rôles acceptés à l'inscription, admin ne s'auto-attribue jamais
func validRole(role string) bool {
	return role == "renter" || role == "host"
}

// Register crée un compte locataire ou hôte
func Register(c *gin.Context) {
	var req struct {
		Name     string `json:"name" binding:"required"`
		Email    string `json:"email" binding:"required,email"`
		Phone    string `json:"phone" binding:"required"`
		Password string `json:"password" binding:"required,min=8"`
		Role     string `json:"role"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Données invalides", "details": err.Error()})
		return
	}

	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Role == "" {
		req.Role = "renter"
	}
	if !validRole(req.Role) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Rôle invalide, attendu renter ou host"})
		return
	}

	phone, err := utils.NormalizePhone(req.Phone)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Numéro de téléphone invalide"})
		return
	}

	// Unicité de l'email via la table users_by_email
	var existingID gocql.UUID
	if err := database.GetPreparedGetUserByEmail().Bind(req.Email).Scan(&existingID); err == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "Cet email est déjà utilisé"})
		return
	}

	hashed, err := utils.HashPassword(req.Password)
	if err != nil {
		log.Printf("❌ Erreur hash mot de passe: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur création compte"})
		return
	}

	userID := gocql.TimeUUID()
	if err := database.GetPreparedInsertUser().Bind(
		userID, req.Email, hashed, req.Name, phone, req.Role, time.Now()).Exec(); err != nil {
		log.Printf("❌ Erreur insertion utilisateur: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur création compte"})
		return
	}
	if err := database.GetPreparedInsertUserByEmail().Bind(req.Email, userID).Exec(); err != nil {
		log.Printf("❌ Erreur insertion users_by_email: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur création compte"})
		return
	}

	user := models.User{
		ID:    userID.String(),
		Name:  req.Name,
		Email: req.Email,
		Phone: phone,
		Role:  req.Role,
	}

	token, err := utils.GenerateJWT(user)
	if err != nil {
		log.Printf("❌ Erreur génération JWT: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur génération token"})
		return
	}

	log.Printf("✅ Compte %s créé: %s (%s)", req.Role, req.Email, userID)
	c.JSON(http.StatusCreated, gin.H{"token": token, "user": user})
}

// Login authentifie par email + mot de passe.
// Les échecs sont comptés par le rate limiter, un succès remet le compteur à zéro.
func Login(c *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required,email"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Données invalides"})
		return
	}

	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	var userID gocql.UUID
	if err := database.GetPreparedGetUserByEmail().Bind(req.Email).Scan(&userID); err != nil {
		middleware.RecordLoginFailure(req.Email)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Email ou mot de passe incorrect"})
		return
	}

	var email, password, name, phone, role string
	if err := database.GetPreparedGetUserByID().Bind(userID).Scan(&email, &password, &name, &phone, &role); err != nil {
		middleware.RecordLoginFailure(req.Email)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Email ou mot de passe incorrect"})
		return
	}

	ok, err := utils.VerifyPassword(req.Password, password)
	if err != nil || !ok {
		middleware.RecordLoginFailure(req.Email)
		utils.LogFailedAction(c, "login_failed", "user", userID.String(), "mot de passe incorrect")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Email ou mot de passe incorrect"})
		return
	}

	middleware.ResetLoginAttempts(req.Email)

	user := models.User{
		ID:    userID.String(),
		Name:  name,
		Email: email,
		Phone: phone,
		Role:  role,
	}
	token, err := utils.GenerateJWT(user)
	if err != nil {
		log.Printf("❌ Erreur génération JWT: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur génération token"})
		return
	}

	log.Printf("✅ Connexion réussie: %s", email)
	c.JSON(http.StatusOK, gin.H{"token": token, "user": user})
}

// GetProfile retourne le profil de l'utilisateur connecté (cache Redis d'abord)
func GetProfile(c *gin.Context) {
	userID := c.GetString("user_id")
	user, err := cache.GetUserFromCache(userID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Profil introuvable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user})
}

// UpdateProfile modifie nom et téléphone, puis invalide le cache
func UpdateProfile(c *gin.Context) {
	var req struct {
		Name  string `json:"name"`
		Phone string `json:"phone"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Données invalides"})
		return
	}
	if req.Name == "" && req.Phone == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Rien à mettre à jour"})
		return
	}

	userID := c.GetString("user_id")
	uid, err := uuid.Parse(userID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Identifiant invalide"})
		return
	}

	session, err := database.GetUsersSession()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur base de données"})
		return
	}

	if req.Phone != "" {
		phone, err := utils.NormalizePhone(req.Phone)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Numéro de téléphone invalide"})
			return
		}
		if err := session.Query(`UPDATE users SET phone = ? WHERE user_id = ?`, phone, gocql.UUID(uid)).
			WithContext(c.Request.Context()).Exec(); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur mise à jour"})
			return
		}
	}
	if req.Name != "" {
		if err := session.Query(`UPDATE users SET name = ? WHERE user_id = ?`, req.Name, gocql.UUID(uid)).
			WithContext(c.Request.Context()).Exec(); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur mise à jour"})
			return
		}
	}

	cache.InvalidateUserCache(userID)
	c.JSON(http.StatusOK, gin.H{"message": "Profil mis à jour"})
}
