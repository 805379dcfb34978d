package domain

// Standard Roles
const (
	RoleStudent = "student"
	RoleProctor = "proctor"
	RoleAdmin   = "admin"
)
