package utils

import (
	"encoding/json"
	"log"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gocql/gocql"

	"kodisha_back_end/internal/database"
	"kodisha_back_end/internal/models"
)

// LogAction enregistre une action d'administration dans les logs d'audit
func LogAction(c *gin.Context, action, resource string, resourceID string, oldValue, newValue interface{}) {
	go func() {
		if err := logActionAsync(c, action, resource, resourceID, oldValue, newValue, true, ""); err != nil {
			log.Printf("❌ Erreur enregistrement log audit: %v", err)
		}
	}()
}

// LogFailedAction enregistre une action échouée dans les logs d'audit
func LogFailedAction(c *gin.Context, action, resource, resourceID, errorMsg string) {
	go func() {
		if err := logActionAsync(c, action, resource, resourceID, nil, nil, false, errorMsg); err != nil {
			log.Printf("❌ Erreur enregistrement log audit: %v", err)
		}
	}()
}

// logActionAsync enregistre de façon asynchrone
func logActionAsync(c *gin.Context, action, resource, resourceID string, oldValue, newValue interface{}, success bool, errorMsg string) error {
	usersSession, err := database.GetUsersSession()
	if err != nil {
		return err
	}

	userID, _ := c.Get("user_id")
	userEmail, _ := c.Get("email")

	// Sérialiser les valeurs
	var oldValueStr, newValueStr string
	if oldValue != nil {
		if oldBytes, err := json.Marshal(oldValue); err == nil {
			oldValueStr = string(oldBytes)
		}
	}
	if newValue != nil {
		if newBytes, err := json.Marshal(newValue); err == nil {
			newValueStr = string(newBytes)
		}
	}

	auditLog := models.AuditLog{
		ID:         gocql.TimeUUID(),
		UserID:     getStringValue(userID),
		UserEmail:  getStringValue(userEmail),
		Action:     action,
		Resource:   resource,
		ResourceID: resourceID,
		OldValue:   oldValueStr,
		NewValue:   newValueStr,
		IPAddress:  c.ClientIP(),
		UserAgent:  c.Request.UserAgent(),
		Success:    success,
		ErrorMsg:   errorMsg,
		Timestamp:  time.Now(),
	}

	return usersSession.Query(`INSERT INTO audit_logs (id, user_id, user_email, action, resource, resource_id, old_value, new_value, ip_address, user_agent, success, error_msg, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		auditLog.ID, auditLog.UserID, auditLog.UserEmail, auditLog.Action,
		auditLog.Resource, auditLog.ResourceID, auditLog.OldValue, auditLog.NewValue,
		auditLog.IPAddress, auditLog.UserAgent, auditLog.Success, auditLog.ErrorMsg,
		auditLog.Timestamp).Exec()
}

func getStringValue(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}
