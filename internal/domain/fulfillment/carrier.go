package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Sentinels for carrier failures. Both trigger the mock fallback.
var (
	ErrCarrierAuth     = errors.New("carrier authentication failed")
	ErrCarrierRejected = errors.New("carrier rejected the shipment")
)

// AuthError reports a failed or revoked carrier credential exchange
type AuthError struct {
	Carrier    CarrierCode
	StatusCode int
	Message    string
	Err        error
}

func (e *AuthError) Error() string {
	msg := fmt.Sprintf("%s auth error", e.Carrier)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap allows errors.Is against ErrCarrierAuth and the transport cause
func (e *AuthError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrCarrierAuth, e.Err}
	}
	return []error{ErrCarrierAuth}
}

// CarrierError reports a structured rejection or an unexpected HTTP status
type CarrierError struct {
	Carrier    CarrierCode
	StatusCode int
	Messages   []string
	Err        error
}

func (e *CarrierError) Error() string {
	msg := fmt.Sprintf("%s carrier error", e.Carrier)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	for _, m := range e.Messages {
		msg += "; " + m
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap allows errors.Is against ErrCarrierRejected and the transport cause
func (e *CarrierError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrCarrierRejected, e.Err}
	}
	return []error{ErrCarrierRejected}
}

// Token is a bearer credential issued by a carrier
type Token struct {
	AccessToken string
	ExpiresAt   time.Time
}

// Valid reports whether the token can still be used at now
func (t Token) Valid(now time.Time) bool {
	return t.AccessToken != "" && now.Before(t.ExpiresAt)
}

// Party is a shipper or recipient on a shipment request
type Party struct {
	Name    string
	Phone   string
	Address Address
}

// Package describes the physical parcel
type Package struct {
	WeightKg float64
	LengthCm int
	WidthCm  int
	HeightCm int
}

// ShipmentRequest is the carrier-agnostic description of one shipment
type ShipmentRequest struct {
	OrderNumber   string
	Service       ServiceLevel
	Shipper       Party
	Recipient     Party
	DeclaredValue decimal.Decimal
	Currency      string
	Package       Package
	ItemCount     int
	Metadata      ShipmentMetadata
}

// RawLabelResponse is what an adapter returns before normalization
type RawLabelResponse struct {
	TrackingNumber    string
	EncodedLabel      string // base64
	Cost              decimal.Decimal
	Currency          string
	EstimatedDelivery time.Time
	IsMock            bool
}

// CarrierAdapter is the capability every carrier integration provides
type CarrierAdapter interface {
	Code() CarrierCode
	Authenticate(ctx context.Context) (Token, error)
	GenerateLabel(ctx context.Context, req *ShipmentRequest) (*RawLabelResponse, error)
}

// CarrierResolver resolves an adapter by code
type CarrierResolver interface {
	Resolve(code CarrierCode) CarrierAdapter
	Fallback() CarrierAdapter
}
