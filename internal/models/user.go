package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Role represents user roles in the system
type Role string

const (
	RoleSuperManager Role = "super_manager"
	RoleManager      Role = "manager"
	RoleStaff        Role = "staff"
	RoleCustomer     Role = "customer"
)

// User represents a user in the system
type User struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	OrgID        string             `bson:"org_id" json:"org_id"`
	Username     string             `bson:"username" json:"username"`
	Email        string             `bson:"email" json:"email"`
	Phone        string             `bson:"phone" json:"phone"`
	PasswordHash string             `bson:"password_hash" json:"-"`
	Role         Role               `bson:"role" json:"role"`
	FirstName    string             `bson:"first_name" json:"first_name"`
	LastName     string             `bson:"last_name" json:"last_name"`
	IsActive     bool               `bson:"is_active" json:"is_active"`
	LastLogin    *time.Time         `bson:"last_login,omitempty" json:"last_login,omitempty"`
	CreatedAt    time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt    time.Time          `bson:"updated_at" json:"updated_at"`
}

// LoginRequest represents a login request
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// RegisterRequest represents a user registration request
type RegisterRequest struct {
	OrgID     string `json:"org_id"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Role      Role   `json:"role"`
}

// LoginResponse represents a successful login response
type LoginResponse struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refresh_token"`
	User         User   `json:"user"`
}

// Claims represents JWT claims
type Claims struct {
	UserID   string `json:"user_id"`
	OrgID    string `json:"org_id"`
	Username string `json:"username"`
	Role     Role   `json:"role"`
	Exp      int64  `json:"exp"`
}

// IsValidRole checks if a role is valid
func IsValidRole(role Role) bool {
	switch role {
	case RoleSuperManager, RoleManager, RoleStaff, RoleCustomer:
		return true
	default:
		return false
	}
}

// IsManagerRole reports whether the role carries manager authority
// (appointment triage, task approval, proposal manager gate).
func IsManagerRole(role Role) bool {
	return role == RoleManager || role == RoleSuperManager
}

// CanClaimTasks reports whether the role may claim tasks off the board.
func CanClaimTasks(role Role) bool {
	return role == RoleStaff || role == RoleSuperManager
}

// HasPermission checks if a user has permission for a specific action
func (u *User) HasPermission(action string) bool {
	switch u.Role {
	case RoleSuperManager:
		return true
	case RoleManager:
		return action != "delete_user" && action != "manage_users"
	case RoleStaff:
		return action == "view_tasks" || action == "claim_task" ||
			action == "release_task" || action == "complete_task" ||
			action == "create_task" || action == "create_proposal" ||
			action == "view_vehicles" || action == "view_calendar"
	case RoleCustomer:
		return action == "submit_checkin" || action == "request_appointment" ||
			action == "view_own_tasks" || action == "decide_proposal" ||
			action == "cancel_appointment"
	default:
		return false
	}
}
