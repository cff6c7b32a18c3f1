package cache

import (
	"context"
	"time"

	"kodisha_back_end/internal/database"

	"github.com/gocql/gocql"
)

// Les passerelles relivrent les callbacks (comportement webhook standard).
// Le marqueur Redis absorbe les doublons rapprochés, la table Scylla
// processed_callbacks garantit le no-op même après expiration du marqueur.

const callbackMarkerTTL = 48 * time.Hour

// ClaimCallback tente de réclamer un identifiant de notification passerelle.
// Retourne false si ce callback a déjà été traité : l'appelant doit alors
// acquitter sans ré-appliquer les effets.
func ClaimCallback(gatewayTxnID string) (bool, error) {
	ctx := context.Background()

	// 1. SETNX Redis : rejet rapide des doublons
	ok, err := database.Redis.SetNX(ctx, "callback:"+gatewayTxnID, "1", callbackMarkerTTL).Result()
	if err == nil && !ok {
		return false, nil
	}

	// 2. Vérification durable dans Scylla
	session, err := database.GetBookingsSession()
	if err != nil {
		return false, err
	}

	var existing string
	err = session.Query("SELECT gateway_txn_id FROM processed_callbacks WHERE gateway_txn_id = ?", gatewayTxnID).
		Scan(&existing)
	if err == nil {
		return false, nil
	}
	if err != gocql.ErrNotFound {
		return false, err
	}

	return true, nil
}

// RecordCallback persiste l'identifiant après application des effets
func RecordCallback(gatewayTxnID, reference string) error {
	session, err := database.GetBookingsSession()
	if err != nil {
		return err
	}
	return session.Query(`INSERT INTO processed_callbacks (gateway_txn_id, reference, processed_at)
		VALUES (?, ?, ?)`, gatewayTxnID, reference, time.Now()).Exec()
}

// ReleaseCallback libère le marqueur si le traitement a échoué, pour
// permettre à la relivraison de la passerelle d'aboutir
func ReleaseCallback(gatewayTxnID string) {
	ctx := context.Background()
	database.Redis.Del(ctx, "callback:"+gatewayTxnID)
}
