package models

import (
	"time"

	"github.com/google/uuid"
)

// User roles. The platform has exactly two sides.
const (
	RoleFarmer = "farmer"
	RoleLabour = "labour"
)

// BankDetails is the labour's payout destination. Verified flips true only
// after the first successful fund-account creation at the provider.
type BankDetails struct {
	AccountHolderName string `json:"account_holder_name"`
	AccountNumber     string `json:"account_number"`
	IFSCCode          string `json:"ifsc_code"`
	BankName          string `json:"bank_name,omitempty"`
	UPIID             string `json:"upi_id,omitempty"`
	Verified          bool   `json:"verified"`
}

type Location struct {
	Village  string `json:"village"`
	District string `json:"district,omitempty"`
	State    string `json:"state,omitempty"`
}

type User struct {
	ID           uuid.UUID `json:"id"`
	FirstName    string    `json:"first_name"`
	LastName     string    `json:"last_name,omitempty"`
	Email        string    `json:"email"`
	Phone        string    `json:"phone"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	Location     Location  `json:"location"`
	Address      string    `json:"address,omitempty"`
	FarmSize     *float64  `json:"farm_size,omitempty"` // acres, farmers only
	Crops        string    `json:"crops,omitempty"`
	Skills       []string  `json:"skills,omitempty"` // labour only

	BankDetails *BankDetails `json:"bank_details,omitempty"`

	// Provider-side ids, created once and cached (payouts).
	ProviderContactID     *string `json:"-"`
	ProviderFundAccountID *string `json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// FullName joins first and last name the way notifications render it.
func (u *User) FullName() string {
	if u.LastName == "" {
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}
