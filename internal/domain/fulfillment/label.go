package fulfillment

import (
	"strings"
	"time"

	"github.com/fulfillment/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CarrierCode identifies a carrier adapter in the registry
type CarrierCode string

const (
	CarrierFedex CarrierCode = "fedex"
	CarrierMock  CarrierCode = "mock"
)

// IsValid checks if the code names a known carrier
func (c CarrierCode) IsValid() bool {
	switch c {
	case CarrierFedex, CarrierMock:
		return true
	}
	return false
}

// String returns the string representation of CarrierCode
func (c CarrierCode) String() string {
	return string(c)
}

// ParseCarrierCode parses a carrier name, case-insensitively
func ParseCarrierCode(raw string) (CarrierCode, error) {
	c := CarrierCode(strings.ToLower(strings.TrimSpace(raw)))
	if !c.IsValid() {
		return "", shared.NewDomainError(shared.CodeInvalidInput, "Unknown carrier "+raw)
	}
	return c, nil
}

// ServiceLevel is the shipping speed requested from the carrier
type ServiceLevel string

const (
	ServiceStandard ServiceLevel = "standard"
	ServiceExpress  ServiceLevel = "express"
	ServicePriority ServiceLevel = "priority"
)

// IsValid checks if the service level is known
func (s ServiceLevel) IsValid() bool {
	switch s {
	case ServiceStandard, ServiceExpress, ServicePriority:
		return true
	}
	return false
}

// String returns the string representation of ServiceLevel
func (s ServiceLevel) String() string {
	return string(s)
}

// LeadDays is the number of days until expected delivery
func (s ServiceLevel) LeadDays() int {
	switch s {
	case ServicePriority:
		return 1
	case ServiceExpress:
		return 2
	default:
		return 3
	}
}

// ParseServiceLevel parses a service level, case-insensitively
func ParseServiceLevel(raw string) (ServiceLevel, error) {
	s := ServiceLevel(strings.ToLower(strings.TrimSpace(raw)))
	if !s.IsValid() {
		return "", shared.NewDomainError(shared.CodeInvalidInput, "Unknown service level "+raw)
	}
	return s, nil
}

// LabelArtifact is the normalized result of label generation. It is immutable.
type LabelArtifact struct {
	ID                uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	OrderID           uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex" json:"order_id"`
	TrackingNumber    string          `gorm:"type:varchar(64);not null;index" json:"tracking_number"`
	LabelBytesRef     string          `gorm:"type:varchar(512)" json:"label_bytes_ref"`
	Cost              decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"cost"`
	Currency          string          `gorm:"type:varchar(3);not null" json:"currency"`
	EstimatedDelivery time.Time       `gorm:"not null" json:"estimated_delivery"`
	Carrier           CarrierCode     `gorm:"type:varchar(20);not null" json:"carrier"`
	ServiceLevel      ServiceLevel    `gorm:"type:varchar(20);not null" json:"service_level"`
	IsMock            bool            `gorm:"not null;default:false" json:"is_mock"`
	FallbackReason    string          `gorm:"type:varchar(500)" json:"fallback_reason,omitempty"`
	CreatedAt         time.Time       `gorm:"not null" json:"created_at"`
}

// TableName returns the table name for GORM
func (LabelArtifact) TableName() string {
	return "label_artifacts"
}

// NewLabelArtifact builds an artifact for an order from a carrier response
func NewLabelArtifact(orderID uuid.UUID, carrier CarrierCode, service ServiceLevel, resp *RawLabelResponse) (*LabelArtifact, error) {
	if resp == nil || strings.TrimSpace(resp.TrackingNumber) == "" {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "Carrier response is missing a tracking number")
	}
	return &LabelArtifact{
		ID:                uuid.New(),
		OrderID:           orderID,
		TrackingNumber:    resp.TrackingNumber,
		Cost:              resp.Cost,
		Currency:          resp.Currency,
		EstimatedDelivery: resp.EstimatedDelivery,
		Carrier:           carrier,
		ServiceLevel:      service,
		IsMock:            resp.IsMock,
		CreatedAt:         time.Now().UTC(),
	}, nil
}
