package domain

import "time"

// DefaultAdminUsername is the single administrator account.
const DefaultAdminUsername = "admin"

// Admin holds the hashed control-plane secret.
type Admin struct {
	Username   string
	SecretHash string
	UpdatedAt  time.Time
}
