package cache

import (
	"context"
	"encoding/json"
	"time"

	"kodisha_back_end/internal/database"
	"kodisha_back_end/internal/models"

	"github.com/gocql/gocql"
	"github.com/google/uuid"
)

const (
	UserCacheTTL       = 5 * time.Minute
	MarkupLinkCacheTTL = 24 * time.Hour // durée de vie d'un lien de réservation partagé
)

// GetUserFromCache récupère un utilisateur depuis Redis ou ScyllaDB
func GetUserFromCache(userID string) (*models.User, error) {
	ctx := context.Background()
	key := "user:" + userID

	// 1. Essayer le cache Redis
	data, err := database.Redis.Get(ctx, key).Result()
	if err == nil {
		var user models.User
		if json.Unmarshal([]byte(data), &user) == nil {
			return &user, nil
		}
	}

	// 2. Récupérer de ScyllaDB
	session, err := database.GetUsersSession()
	if err != nil {
		return nil, err
	}

	uid, err := uuid.Parse(userID)
	if err != nil {
		return nil, err
	}
	userUUID := gocql.UUID(uid)

	var email, name, phone, role string
	err = session.Query(`SELECT email, name, phone, role FROM users WHERE user_id = ?`, userUUID).
		Scan(&email, &name, &phone, &role)
	if err != nil {
		return nil, err
	}

	user := &models.User{
		ID:    userID,
		Email: email,
		Name:  name,
		Phone: phone,
		Role:  role,
	}

	// 3. Mettre en cache
	jsonData, _ := json.Marshal(user)
	database.Redis.Set(ctx, key, jsonData, UserCacheTTL)

	return user, nil
}

// InvalidateUserCache invalide le cache d'un utilisateur
func InvalidateUserCache(userID string) {
	ctx := context.Background()
	database.Redis.Del(ctx, "user:"+userID)
}

// StoreMarkupLink met la configuration d'un lien markup en cache, clé par token.
// Un acheteur externe qui suit le lien ne touche Scylla qu'en cas de cache miss.
func StoreMarkupLink(markup *models.Markup) error {
	ctx := context.Background()
	data, err := json.Marshal(markup)
	if err != nil {
		return err
	}
	return database.Redis.Set(ctx, "markup_link:"+markup.LinkToken, data, MarkupLinkCacheTTL).Err()
}

// GetMarkupLink résout un token de lien markup depuis Redis puis ScyllaDB
func GetMarkupLink(token string) (*models.Markup, error) {
	ctx := context.Background()

	data, err := database.Redis.Get(ctx, "markup_link:"+token).Result()
	if err == nil {
		var markup models.Markup
		if json.Unmarshal([]byte(data), &markup) == nil {
			return &markup, nil
		}
	}

	// Cache miss → ScyllaDB
	session, err := database.GetListingsSession()
	if err != nil {
		return nil, err
	}

	var markup models.Markup
	var markupID, resourceID gocql.UUID
	err = session.Query(`SELECT markup_id, host_id, resource_kind, resource_id, base_amount, percentage, flat_amount, final_amount, active, created_at
		FROM markups_by_token WHERE link_token = ?`, token).Scan(
		&markupID, &markup.HostID, &markup.ResourceKind, &resourceID,
		&markup.BaseAmount, &markup.Percentage, &markup.FlatAmount,
		&markup.FinalAmount, &markup.Active, &markup.CreatedAt)
	if err != nil {
		return nil, err
	}
	markup.ID = markupID
	markup.ResourceID = resourceID
	markup.LinkToken = token

	// Re-remplir le cache
	if jsonData, err := json.Marshal(&markup); err == nil {
		database.Redis.Set(ctx, "markup_link:"+token, jsonData, MarkupLinkCacheTTL)
	}

	return &markup, nil
}

// InvalidateMarkupLink retire un lien désactivé du cache
func InvalidateMarkupLink(token string) {
	ctx := context.Background()
	database.Redis.Del(ctx, "markup_link:"+token)
}
