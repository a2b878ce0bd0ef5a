package carrier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/fulfillment/backend/internal/domain/fulfillment"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// maxFedexResponseSize limits the response body size to prevent memory exhaustion
const maxFedexResponseSize = 10 * 1024 * 1024

// fedexServiceTypes maps service levels to FedEx service codes
var fedexServiceTypes = map[fulfillment.ServiceLevel]string{
	fulfillment.ServiceStandard: "FEDEX_GROUND",
	fulfillment.ServiceExpress:  "FEDEX_2_DAY",
	fulfillment.ServicePriority: "PRIORITY_OVERNIGHT",
}

// FedexAdapter implements fulfillment.CarrierAdapter against the FedEx REST API.
// The bearer token is cached per adapter instance.
type FedexAdapter struct {
	config     *FedexConfig
	httpClient *http.Client
	logger     *zap.Logger
	now        func() time.Time

	// mu guards token; refresh collapses concurrent exchanges into one
	mu      sync.Mutex
	token   fulfillment.Token
	refresh singleflight.Group
}

// FedexOption configures a FedexAdapter
type FedexOption func(*FedexAdapter)

// WithFedexHTTPClient replaces the HTTP client
func WithFedexHTTPClient(client *http.Client) FedexOption {
	return func(a *FedexAdapter) {
		a.httpClient = client
	}
}

// WithFedexLogger sets the logger
func WithFedexLogger(logger *zap.Logger) FedexOption {
	return func(a *FedexAdapter) {
		a.logger = logger
	}
}

// WithFedexClock overrides the time source
func WithFedexClock(now func() time.Time) FedexOption {
	return func(a *FedexAdapter) {
		a.now = now
	}
}

// NewFedexAdapter creates a FedEx adapter with the given configuration
func NewFedexAdapter(config *FedexConfig, opts ...FedexOption) (*FedexAdapter, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	a := &FedexAdapter{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		logger:     zap.NewNop(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Code returns the carrier code this adapter handles
func (a *FedexAdapter) Code() fulfillment.CarrierCode {
	return fulfillment.CarrierFedex
}

// Authenticate returns a cached token or exchanges the client credentials for
// a new one. Concurrent callers share one exchange and its outcome, success
// or failure. Each caller stops waiting when its own ctx is done; the
// exchange itself runs detached, bounded by the configured timeout.
func (a *FedexAdapter) Authenticate(ctx context.Context) (fulfillment.Token, error) {
	if token, ok := a.cachedToken(); ok {
		return token, nil
	}

	ch := a.refresh.DoChan("token", func() (any, error) {
		if token, ok := a.cachedToken(); ok {
			return token, nil
		}
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.config.Timeout)
		defer cancel()
		token, err := a.fetchToken(fetchCtx)
		if err != nil {
			return fulfillment.Token{}, err
		}
		a.mu.Lock()
		a.token = token
		a.mu.Unlock()
		return token, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return fulfillment.Token{}, res.Err
		}
		return res.Val.(fulfillment.Token), nil
	case <-ctx.Done():
		return fulfillment.Token{}, &fulfillment.AuthError{
			Carrier: fulfillment.CarrierFedex,
			Message: "gave up waiting for token",
			Err:     ctx.Err(),
		}
	}
}

func (a *FedexAdapter) cachedToken() (fulfillment.Token, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.token, a.token.Valid(a.now())
}

// invalidateToken drops a token the server rejected
func (a *FedexAdapter) invalidateToken(rejected string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.token.AccessToken == rejected {
		a.token = fulfillment.Token{}
	}
}

func (a *FedexAdapter) fetchToken(ctx context.Context) (fulfillment.Token, error) {
	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", a.config.APIKey)
	form.Set("client_secret", a.config.SecretKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.config.BaseURL+"/oauth/token", strings.NewReader(form.Encode()))
	if err != nil {
		return fulfillment.Token{}, &fulfillment.AuthError{Carrier: fulfillment.CarrierFedex, Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return fulfillment.Token{}, &fulfillment.AuthError{Carrier: fulfillment.CarrierFedex, Message: "token request failed", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFedexResponseSize))
	if err != nil {
		return fulfillment.Token{}, &fulfillment.AuthError{Carrier: fulfillment.CarrierFedex, Message: "failed to read token response", Err: err}
	}
	if resp.StatusCode >= 400 {
		return fulfillment.Token{}, &fulfillment.AuthError{Carrier: fulfillment.CarrierFedex, StatusCode: resp.StatusCode, Message: "token endpoint rejected credentials"}
	}

	var tr fedexTokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return fulfillment.Token{}, &fulfillment.AuthError{Carrier: fulfillment.CarrierFedex, Message: "failed to parse token response", Err: err}
	}
	if tr.AccessToken == "" {
		return fulfillment.Token{}, &fulfillment.AuthError{Carrier: fulfillment.CarrierFedex, Message: "token response has no access token"}
	}

	lifetime := time.Duration(tr.ExpiresIn)*time.Second - tokenSkew
	if lifetime < 0 {
		lifetime = 0
	}
	a.logger.Debug("FedEx token refreshed", zap.Duration("lifetime", lifetime))
	return fulfillment.Token{AccessToken: tr.AccessToken, ExpiresAt: a.now().Add(lifetime)}, nil
}

// GenerateLabel creates a shipment and returns its label
func (a *FedexAdapter) GenerateLabel(ctx context.Context, shipment *fulfillment.ShipmentRequest) (*fulfillment.RawLabelResponse, error) {
	token, err := a.Authenticate(ctx)
	if err != nil {
		return nil, err
	}

	bodyBytes, err := json.Marshal(a.buildShipRequest(shipment))
	if err != nil {
		return nil, fmt.Errorf("fedex: failed to marshal shipment: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.config.BaseURL+"/ship/v1/shipments", bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("fedex: failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+token.AccessToken)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, &fulfillment.CarrierError{Carrier: fulfillment.CarrierFedex, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFedexResponseSize))
	if err != nil {
		return nil, &fulfillment.CarrierError{Carrier: fulfillment.CarrierFedex, StatusCode: resp.StatusCode, Err: err}
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		a.invalidateToken(token.AccessToken)
		return nil, &fulfillment.AuthError{Carrier: fulfillment.CarrierFedex, StatusCode: resp.StatusCode, Message: "bearer token rejected"}
	}

	var sr fedexShipResponse
	if len(body) > 0 {
		if err := json.Unmarshal(body, &sr); err != nil && resp.StatusCode < 400 {
			return nil, &fulfillment.CarrierError{Carrier: fulfillment.CarrierFedex, StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to parse response: %w", err)}
		}
	}
	if resp.StatusCode >= 400 || len(sr.Errors) > 0 {
		messages := make([]string, 0, len(sr.Errors))
		for _, e := range sr.Errors {
			messages = append(messages, e.Code+": "+e.Message)
		}
		return nil, &fulfillment.CarrierError{Carrier: fulfillment.CarrierFedex, StatusCode: resp.StatusCode, Messages: messages}
	}
	if sr.TrackingNumber == "" {
		return nil, &fulfillment.CarrierError{Carrier: fulfillment.CarrierFedex, StatusCode: resp.StatusCode, Messages: []string{"response has no tracking number"}}
	}

	return a.normalize(shipment, &sr), nil
}

func (a *FedexAdapter) buildShipRequest(s *fulfillment.ShipmentRequest) *fedexShipRequest {
	req := &fedexShipRequest{
		AccountNumber:     fedexAccountNumber{Value: a.config.AccountNumber},
		CustomerReference: s.OrderNumber,
		RequestedShipment: fedexRequestedShipment{
			Shipper:              toFedexParty(s.Shipper),
			Recipients:           []fedexParty{toFedexParty(s.Recipient)},
			ServiceType:          fedexServiceTypes[s.Service],
			PackagingType:        "YOUR_PACKAGING",
			PickupType:           "USE_SCHEDULED_PICKUP",
			LabelResponseOptions: "LABEL",
			RequestedPackages: []fedexPackageLineItem{{
				Weight: fedexWeight{Units: "KG", Value: s.Package.WeightKg},
				Dimensions: fedexDimensions{
					Length: s.Package.LengthCm,
					Width:  s.Package.WidthCm,
					Height: s.Package.HeightCm,
					Units:  "CM",
				},
				DeclaredValue: fedexMoney{Amount: s.DeclaredValue.StringFixed(2), Currency: s.Currency},
			}},
		},
	}
	if req.RequestedShipment.ServiceType == "" {
		req.RequestedShipment.ServiceType = fedexServiceTypes[fulfillment.ServiceStandard]
	}
	return req
}

func toFedexParty(p fulfillment.Party) fedexParty {
	lines := []string{p.Address.Line1}
	if p.Address.Line2 != "" {
		lines = append(lines, p.Address.Line2)
	}
	return fedexParty{
		Contact: fedexContact{PersonName: p.Name, PhoneNumber: p.Phone},
		Address: fedexAddress{
			StreetLines:         lines,
			City:                p.Address.City,
			StateOrProvinceCode: p.Address.State,
			PostalCode:          p.Address.PostalCode,
			CountryCode:         p.Address.Country,
		},
	}
}

func (a *FedexAdapter) normalize(s *fulfillment.ShipmentRequest, sr *fedexShipResponse) *fulfillment.RawLabelResponse {
	cost, err := decimal.NewFromString(sr.Cost)
	if err != nil {
		cost = decimal.Zero
	}
	currency := sr.Currency
	if currency == "" {
		currency = s.Currency
	}
	eta, ok := parseFedexDate(sr.EstimatedDelivery)
	if !ok {
		eta = startOfDay(a.now()).AddDate(0, 0, s.Service.LeadDays())
	}
	return &fulfillment.RawLabelResponse{
		TrackingNumber:    sr.TrackingNumber,
		EncodedLabel:      sr.EncodedLabel,
		Cost:              cost,
		Currency:          currency,
		EstimatedDelivery: eta,
	}
}

func parseFedexDate(raw string) (time.Time, bool) {
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
