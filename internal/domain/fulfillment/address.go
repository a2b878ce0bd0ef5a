package fulfillment

import (
	"strings"

	"github.com/fulfillment/backend/internal/domain/shared"
)

// Address is a postal address used for shipping and for the warehouse origin
type Address struct {
	Name       string `gorm:"type:varchar(100)" json:"name"`
	Phone      string `gorm:"type:varchar(32)" json:"phone,omitempty"`
	Line1      string `gorm:"type:varchar(200)" json:"line1"`
	Line2      string `gorm:"type:varchar(200)" json:"line2,omitempty"`
	City       string `gorm:"type:varchar(100)" json:"city"`
	State      string `gorm:"type:varchar(100)" json:"state,omitempty"`
	PostalCode string `gorm:"type:varchar(20)" json:"postal_code"`
	Country    string `gorm:"type:varchar(2)" json:"country"`
}

// IsEmpty reports whether no address line is set
func (a Address) IsEmpty() bool {
	return strings.TrimSpace(a.Line1) == "" && strings.TrimSpace(a.City) == ""
}

// Validate checks the fields a carrier needs
func (a Address) Validate() error {
	if strings.TrimSpace(a.Line1) == "" {
		return shared.NewDomainError(shared.CodeInvalidInput, "Address line1 is required")
	}
	if strings.TrimSpace(a.City) == "" {
		return shared.NewDomainError(shared.CodeInvalidInput, "Address city is required")
	}
	if strings.TrimSpace(a.PostalCode) == "" {
		return shared.NewDomainError(shared.CodeInvalidInput, "Address postal code is required")
	}
	if len(strings.TrimSpace(a.Country)) != 2 {
		return shared.NewDomainError(shared.CodeInvalidInput, "Address country must be an ISO 3166-1 alpha-2 code")
	}
	return nil
}
