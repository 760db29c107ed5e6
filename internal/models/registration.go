package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PaymentStatus is the state of a registration's payment
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
)

// Registration links a user to a workshop. Rows are written by the checkout flow.
type Registration struct {
	ID            string        `gorm:"primaryKey;size:64" json:"id"`
	UserID        string        `gorm:"size:64;not null;uniqueIndex:idx_registration_user_workshop" json:"user_id"`
	WorkshopID    string        `gorm:"size:64;not null;uniqueIndex:idx_registration_user_workshop;index:idx_registration_workshop_status" json:"workshop_id"`
	PaymentStatus PaymentStatus `gorm:"size:20;not null;default:pending;index:idx_registration_workshop_status" json:"payment_status"`
	PaymentID     string        `gorm:"size:64" json:"payment_id,omitempty"`
	OrderID       string        `gorm:"size:64;index" json:"order_id,omitempty"`
	Amount        int64         `gorm:"not null" json:"amount"`
	CouponCode    string        `gorm:"size:64" json:"coupon_code,omitempty"`
	RegisteredAt  time.Time     `gorm:"not null" json:"registered_at"`
}

// BeforeCreate hook is called before creating a new registration
func (r *Registration) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.RegisteredAt.IsZero() {
		r.RegisteredAt = time.Now().UTC()
	}
	if r.PaymentStatus == "" {
		r.PaymentStatus = PaymentPending
	}
	return nil
}

// TableName specifies the table name for the Registration model
func (Registration) TableName() string {
	return "registration"
}
