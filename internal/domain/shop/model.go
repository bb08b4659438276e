package shop

import (
	ierr "github.com/dukastack/billing/internal/errors"
	"github.com/dukastack/billing/internal/types"
)

// Shop is the tenant account that owns a subscription. The owner contact
// fields are the recipients for every billing notification.
type Shop struct {
	ID         string `json:"id" gorm:"primaryKey;column:id"`
	Name       string `json:"name" gorm:"column:name"`
	OwnerName  string `json:"owner_name" gorm:"column:owner_name"`
	OwnerEmail string `json:"owner_email" gorm:"column:owner_email"`
	OwnerPhone string `json:"owner_phone,omitempty" gorm:"column:owner_phone"`
	Timezone   string `json:"timezone,omitempty" gorm:"column:timezone"`

	types.BaseModel
}

func (Shop) TableName() string {
	return "shops"
}

func (s *Shop) Validate() error {
	if s.Name == "" {
		return ierr.NewError("shop name is required").Mark(ierr.ErrValidation)
	}
	if s.OwnerEmail == "" {
		return ierr.NewError("owner email is required").Mark(ierr.ErrValidation)
	}
	return nil
}
