package models

type User struct {
	ID       string `json:"user_id"`
	Name     string `json:"name,omitempty"`
	Email    string `json:"email"`
	Phone    string `json:"phone,omitempty"`
	Password string `json:"-"`
	Role     string `json:"role,omitempty"` // renter, host, admin
}
