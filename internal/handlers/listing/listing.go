package listing

import (
	"log"
	"net/http"
	"time"

	"kodisha_back_end/internal/database"
	"kodisha_back_end/internal/models"
	"kodisha_back_end/internal/utils"

	"github.com/gin-gonic/gin"
	"github.com/gocql/gocql"
	"github.com/google/uuid"
)

// CreateProperty publie un logement. Réservé aux hôtes.
func CreateProperty(c *gin.Context) {
	var req struct {
		Title         string  `json:"title" binding:"required"`
		Location      string  `json:"location" binding:"required"`
		PricePerNight float64 `json:"price_per_night" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Données invalides", "details": err.Error()})
		return
	}
	if req.PricePerNight <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Le prix par nuit doit être positif"})
		return
	}

	hostID := c.GetString("user_id")
	session, err := database.GetListingsSession()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur base de données"})
		return
	}

	property := models.Property{
		ID:            gocql.TimeUUID(),
		OwnerID:       hostID,
		Title:         req.Title,
		Location:      req.Location,
		PricePerNight: req.PricePerNight,
		Active:        true,
		CreatedAt:     time.Now(),
	}

	if err := session.Query(`INSERT INTO properties (property_id, owner_id, title, location, price_per_night, active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		property.ID, property.OwnerID, property.Title, property.Location,
		property.PricePerNight, property.Active, property.CreatedAt).
		WithContext(c.Request.Context()).Exec(); err != nil {
		log.Printf("❌ Erreur création logement: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur création annonce"})
		return
	}

	utils.LogAction(c, "property_created", "property", property.ID.String(), nil, property)
	c.JSON(http.StatusCreated, gin.H{"message": "Logement publié", "property": property})
}

// CreateCar publie un véhicule. Réservé aux hôtes.
func CreateCar(c *gin.Context) {
	var req struct {
		Make        string  `json:"make" binding:"required"`
		Model       string  `json:"model" binding:"required"`
		PlateNumber string  `json:"plate_number" binding:"required"`
		PricePerDay float64 `json:"price_per_day" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Données invalides", "details": err.Error()})
		return
	}
	if req.PricePerDay <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Le prix par jour doit être positif"})
		return
	}

	hostID := c.GetString("user_id")
	session, err := database.GetListingsSession()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur base de données"})
		return
	}

	car := models.Car{
		ID:          gocql.TimeUUID(),
		OwnerID:     hostID,
		Make:        req.Make,
		Model:       req.Model,
		PlateNumber: req.PlateNumber,
		PricePerDay: req.PricePerDay,
		Active:      true,
		CreatedAt:   time.Now(),
	}

	if err := session.Query(`INSERT INTO cars (car_id, owner_id, make, model, plate_number, price_per_day, active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		car.ID, car.OwnerID, car.Make, car.Model, car.PlateNumber,
		car.PricePerDay, car.Active, car.CreatedAt).
		WithContext(c.Request.Context()).Exec(); err != nil {
		log.Printf("❌ Erreur création véhicule: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur création annonce"})
		return
	}

	utils.LogAction(c, "car_created", "car", car.ID.String(), nil, car)
	c.JSON(http.StatusCreated, gin.H{"message": "Véhicule publié", "car": car})
}

// GetProperties liste les logements actifs (catalogue public)
func GetProperties(c *gin.Context) {
	session, err := database.GetListingsSession()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur base de données"})
		return
	}

	iter := session.Query(`SELECT property_id, owner_id, title, location, price_per_night, active, created_at
		FROM properties`).WithContext(c.Request.Context()).Iter()

	properties := []models.Property{}
	var p models.Property
	for iter.Scan(&p.ID, &p.OwnerID, &p.Title, &p.Location, &p.PricePerNight, &p.Active, &p.CreatedAt) {
		if p.Active {
			properties = append(properties, p)
		}
		p = models.Property{}
	}
	if err := iter.Close(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur lecture annonces"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"properties": properties, "count": len(properties)})
}

// GetCars liste les véhicules actifs (catalogue public)
func GetCars(c *gin.Context) {
	session, err := database.GetListingsSession()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur base de données"})
		return
	}

	iter := session.Query(`SELECT car_id, owner_id, make, model, plate_number, price_per_day, active, created_at
		FROM cars`).WithContext(c.Request.Context()).Iter()

	cars := []models.Car{}
	var car models.Car
	for iter.Scan(&car.ID, &car.OwnerID, &car.Make, &car.Model, &car.PlateNumber,
		&car.PricePerDay, &car.Active, &car.CreatedAt) {
		if car.Active {
			cars = append(cars, car)
		}
		car = models.Car{}
	}
	if err := iter.Close(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur lecture annonces"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"cars": cars, "count": len(cars)})
}

// DeactivateListing retire une annonce du catalogue sans la supprimer
func DeactivateListing(c *gin.Context) {
	kind := c.Param("kind")
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ID d'annonce invalide"})
		return
	}

	session, err := database.GetListingsSession()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur base de données"})
		return
	}

	ctx := c.Request.Context()
	var table, pk, ownerID string
	switch kind {
	case models.ResourceProperty:
		table, pk = "properties", "property_id"
	case models.ResourceCar:
		table, pk = "cars", "car_id"
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "Type d'annonce inconnu"})
		return
	}

	if err := session.Query("SELECT owner_id FROM "+table+" WHERE "+pk+" = ?", gocql.UUID(id)).
		WithContext(ctx).Scan(&ownerID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Annonce introuvable"})
		return
	}
	if ownerID != c.GetString("user_id") && c.GetString("role") != "admin" {
		c.JSON(http.StatusForbidden, gin.H{"error": "Cette annonce ne vous appartient pas"})
		return
	}

	if err := session.Query("UPDATE "+table+" SET active = false WHERE "+pk+" = ?", gocql.UUID(id)).
		WithContext(ctx).Exec(); err != nil {
		log.Printf("❌ Erreur désactivation annonce %s: %v", id, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur désactivation"})
		return
	}

	utils.LogAction(c, kind+"_deactivated", kind, id.String(), nil, nil)
	c.JSON(http.StatusOK, gin.H{"message": "Annonce désactivée"})
}
