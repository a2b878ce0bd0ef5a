package carrier

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"time"

	"github.com/fulfillment/backend/internal/domain/fulfillment"
	"github.com/shopspring/decimal"
)

const (
	mockTrackingPrefix   = "FX"
	mockTrackingLength   = 10
	mockTrackingAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	mockCurrency         = "JPY"
)

// mockCosts is the fixed per-service cost table in JPY
var mockCosts = map[fulfillment.ServiceLevel]int64{
	fulfillment.ServiceStandard: 800,
	fulfillment.ServiceExpress:  1200,
	fulfillment.ServicePriority: 1800,
}

// MockAdapter produces local labels without any network I/O. Output depends
// only on the order number, the service level and the current day.
type MockAdapter struct {
	now func() time.Time
}

// NewMockAdapter creates a mock adapter
func NewMockAdapter() *MockAdapter {
	return &MockAdapter{now: time.Now}
}

// NewMockAdapterWithClock creates a mock adapter with a fixed time source
func NewMockAdapterWithClock(now func() time.Time) *MockAdapter {
	return &MockAdapter{now: now}
}

// Code returns the carrier code this adapter handles
func (m *MockAdapter) Code() fulfillment.CarrierCode {
	return fulfillment.CarrierMock
}

// Authenticate always succeeds
func (m *MockAdapter) Authenticate(_ context.Context) (fulfillment.Token, error) {
	return fulfillment.Token{AccessToken: "mock", ExpiresAt: m.now().Add(24 * time.Hour)}, nil
}

// GenerateLabel builds a mock label. It ignores cancellation so it can serve
// as the fallback after a cancelled carrier call.
func (m *MockAdapter) GenerateLabel(_ context.Context, req *fulfillment.ShipmentRequest) (*fulfillment.RawLabelResponse, error) {
	service := req.Service
	if !service.IsValid() {
		service = fulfillment.ServiceStandard
	}

	tracking := MockTrackingNumber(req.OrderNumber, service)
	eta := startOfDay(m.now().UTC()).AddDate(0, 0, service.LeadDays())

	doc := RenderLabelPDF([]string{
		"MOCK SHIPPING LABEL",
		"Order: " + req.OrderNumber,
		"Service: " + string(service),
		"Tracking: " + tracking,
		"To: " + req.Recipient.Name,
		req.Recipient.Address.Line1,
		req.Recipient.Address.City + " " + req.Recipient.Address.PostalCode + " " + req.Recipient.Address.Country,
		"ETA: " + eta.Format("2006-01-02"),
	})

	return &fulfillment.RawLabelResponse{
		TrackingNumber:    tracking,
		EncodedLabel:      base64.StdEncoding.EncodeToString(doc),
		Cost:              decimal.NewFromInt(mockCosts[service]),
		Currency:          mockCurrency,
		EstimatedDelivery: eta,
		IsMock:            true,
	}, nil
}

// MockTrackingNumber derives a well-formed tracking number from the order
// number and service: FX followed by 10 characters of [A-Z0-9].
func MockTrackingNumber(orderNumber string, service fulfillment.ServiceLevel) string {
	sum := sha256.Sum256([]byte(orderNumber + "|" + string(service)))
	buf := make([]byte, 0, len(mockTrackingPrefix)+mockTrackingLength)
	buf = append(buf, mockTrackingPrefix...)
	for i := 0; i < mockTrackingLength; i++ {
		buf = append(buf, mockTrackingAlphabet[int(sum[i])%len(mockTrackingAlphabet)])
	}
	return string(buf)
}
