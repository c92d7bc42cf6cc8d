package models

// Role names seeded at bootstrap.
const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

type Role struct {
	ID          string
	Name        string
	Description string
}
