package auth

import "time"

type Role string

const (
	// RoleSchoolHead is the submission-responsible actor: the statutory
	// liquidation clock runs against this role.
	RoleSchoolHead Role = "school_head"
	// RoleDistrictAdmin reviews submitted liquidations at the district desk.
	RoleDistrictAdmin Role = "district_admin"
	// RoleLiquidator is the division liquidation officer.
	RoleLiquidator Role = "liquidator"
	// RoleDivisionAccountant finalizes liquidations and books the refund.
	RoleDivisionAccountant Role = "division_accountant"
	// RoleAdmin is the division-office superuser.
	RoleAdmin Role = "admin"
)

// User is the domain representation of an authenticated user.
// It mirrors the users table and should not include JSON annotations so it
// can be reused by different presentation layers.
type User struct {
	ID           string
	Email        string
	FullName     string
	PasswordHash string
	SchoolID     *string
	District     *string
	Role         Role
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// RegisterRequest contains user registration data supplied by callers.
type RegisterRequest struct {
	Email    string  `json:"email"`
	Password string  `json:"password"`
	FullName string  `json:"full_name"`
	Role     Role    `json:"role"`
	SchoolID *string `json:"school_id"`
	District *string `json:"district"`
}

// LoginRequest contains user login credentials.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}
