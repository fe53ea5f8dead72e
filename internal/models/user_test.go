package models

import (
	"testing"
)

func TestIsValidRole(t *testing.T) {
	tests := []struct {
		name     string
		role     Role
		expected bool
	}{
		{"super manager role", RoleSuperManager, true},
		{"manager role", RoleManager, true},
		{"staff role", RoleStaff, true},
		{"customer role", RoleCustomer, true},
		{"invalid role", "invalid", false},
		{"empty role", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := IsValidRole(tt.role)
			if result != tt.expected {
				t.Errorf("IsValidRole(%s) = %v, want %v", tt.role, result, tt.expected)
			}
		})
	}
}

func TestIsManagerRole(t *testing.T) {
	tests := []struct {
		name     string
		role     Role
		expected bool
	}{
		{"super manager", RoleSuperManager, true},
		{"manager", RoleManager, true},
		{"staff", RoleStaff, false},
		{"customer", RoleCustomer, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if result := IsManagerRole(tt.role); result != tt.expected {
				t.Errorf("IsManagerRole(%s) = %v, want %v", tt.role, result, tt.expected)
			}
		})
	}
}

func TestCanClaimTasks(t *testing.T) {
	tests := []struct {
		name     string
		role     Role
		expected bool
	}{
		{"staff can claim", RoleStaff, true},
		{"super manager can claim", RoleSuperManager, true},
		{"manager cannot claim", RoleManager, false},
		{"customer cannot claim", RoleCustomer, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if result := CanClaimTasks(tt.role); result != tt.expected {
				t.Errorf("CanClaimTasks(%s) = %v, want %v", tt.role, result, tt.expected)
			}
		})
	}
}

func TestUser_HasPermission(t *testing.T) {
	superManager := &User{Role: RoleSuperManager}
	manager := &User{Role: RoleManager}
	staff := &User{Role: RoleStaff}
	customer := &User{Role: RoleCustomer}

	tests := []struct {
		name     string
		user     *User
		action   string
		expected bool
	}{
		// Super manager - should have all permissions
		{"super manager can delete user", superManager, "delete_user", true},
		{"super manager can manage users", superManager, "manage_users", true},
		{"super manager can claim task", superManager, "claim_task", true},

		// Manager - everything except user management
		{"manager cannot delete user", manager, "delete_user", false},
		{"manager cannot manage users", manager, "manage_users", false},
		{"manager can view tasks", manager, "view_tasks", true},
		{"manager can decide proposal", manager, "decide_proposal", true},

		// Staff - board and proposal operations
		{"staff can view tasks", staff, "view_tasks", true},
		{"staff can claim task", staff, "claim_task", true},
		{"staff can release task", staff, "release_task", true},
		{"staff can create proposal", staff, "create_proposal", true},
		{"staff cannot delete user", staff, "delete_user", false},
		{"staff cannot submit checkin", staff, "submit_checkin", false},

		// Customer - own requests only
		{"customer can submit checkin", customer, "submit_checkin", true},
		{"customer can request appointment", customer, "request_appointment", true},
		{"customer can decide proposal", customer, "decide_proposal", true},
		{"customer cannot claim task", customer, "claim_task", false},
		{"customer cannot view tasks", customer, "view_tasks", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := tt.user.HasPermission(tt.action)
			if result != tt.expected {
				t.Errorf("User with role %s HasPermission(%s) = %v, want %v",
					tt.user.Role, tt.action, result, tt.expected)
			}
		})
	}
}
