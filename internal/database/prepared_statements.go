package database

import (
	"log"
	"sync"

	"github.com/gocql/gocql"
)

var (
	// Prepared statements pour les chemins chauds (callbacks de paiement)
	stmtGetPaymentByReference *gocql.Query
	stmtGetUserByEmail        *gocql.Query
	stmtGetUserByID           *gocql.Query
	stmtInsertUser            *gocql.Query
	stmtInsertUserByEmail     *gocql.Query

	preparedOnce sync.Once
)

// InitPreparedStatements initialise les prepared statements
func InitPreparedStatements() {
	preparedOnce.Do(func() {
		usersSession, err := GetUsersSession()
		if err != nil {
			log.Printf("⚠️ Impossible d'initialiser les prepared statements (users): %v", err)
			return
		}

		bookingsSession, err := GetBookingsSession()
		if err != nil {
			log.Printf("⚠️ Impossible d'initialiser les prepared statements (bookings): %v", err)
			return
		}

		// Corrélation paiement au callback : la requête la plus fréquente
		stmtGetPaymentByReference = bookingsSession.Query(`SELECT payment_id, user_id, property_booking_id, car_booking_id, amount, method, status, phone_number
			FROM payments_by_reference WHERE reference = ?`)

		// Requête pour récupérer user_id par email
		stmtGetUserByEmail = usersSession.Query("SELECT user_id FROM users_by_email WHERE email = ?")

		// Requête pour récupérer un utilisateur par ID
		stmtGetUserByID = usersSession.Query(`SELECT email, password, name, phone, role
			FROM users WHERE user_id = ?`)

		// Requête pour insérer un utilisateur
		stmtInsertUser = usersSession.Query(`INSERT INTO users (user_id, email, password, name, phone, role, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`)

		// Requête pour insérer dans users_by_email
		stmtInsertUserByEmail = usersSession.Query("INSERT INTO users_by_email (email, user_id) VALUES (?, ?)")

		log.Println("✅ Prepared statements initialisés")
	})
}

func GetPreparedGetPaymentByReference() *gocql.Query {
	return stmtGetPaymentByReference
}

func GetPreparedGetUserByEmail() *gocql.Query {
	return stmtGetUserByEmail
}

func GetPreparedGetUserByID() *gocql.Query {
	return stmtGetUserByID
}

func GetPreparedInsertUser() *gocql.Query {
	return stmtInsertUser
}

func GetPreparedInsertUserByEmail() *gocql.Query {
	return stmtInsertUserByEmail
}
