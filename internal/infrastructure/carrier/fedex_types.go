package carrier

// fedexTokenResponse is the OAuth token endpoint response
type fedexTokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
	Scope       string `json:"scope"`
}

type fedexAddress struct {
	StreetLines         []string `json:"streetLines"`
	City                string   `json:"city"`
	StateOrProvinceCode string   `json:"stateOrProvinceCode,omitempty"`
	PostalCode          string   `json:"postalCode"`
	CountryCode         string   `json:"countryCode"`
}

type fedexContact struct {
	PersonName  string `json:"personName"`
	PhoneNumber string `json:"phoneNumber,omitempty"`
}

type fedexParty struct {
	Contact fedexContact `json:"contact"`
	Address fedexAddress `json:"address"`
}

type fedexWeight struct {
	Units string  `json:"units"`
	Value float64 `json:"value"`
}

type fedexDimensions struct {
	Length int    `json:"length"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Units  string `json:"units"`
}

type fedexMoney struct {
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
}

type fedexPackageLineItem struct {
	Weight        fedexWeight     `json:"weight"`
	Dimensions    fedexDimensions `json:"dimensions"`
	DeclaredValue fedexMoney      `json:"declaredValue"`
}

type fedexRequestedShipment struct {
	Shipper              fedexParty             `json:"shipper"`
	Recipients           []fedexParty           `json:"recipients"`
	ServiceType          string                 `json:"serviceType"`
	PackagingType        string                 `json:"packagingType"`
	PickupType           string                 `json:"pickupType"`
	LabelResponseOptions string                 `json:"labelResponseOptions"`
	RequestedPackages    []fedexPackageLineItem `json:"requestedPackageLineItems"`
}

type fedexAccountNumber struct {
	Value string `json:"value"`
}

// fedexShipRequest is the body of the shipment creation call
type fedexShipRequest struct {
	AccountNumber     fedexAccountNumber     `json:"accountNumber"`
	RequestedShipment fedexRequestedShipment `json:"requestedShipment"`
	CustomerReference string                 `json:"customerReference,omitempty"`
}

type fedexAPIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// fedexShipResponse is the normalized subset of the shipment response
type fedexShipResponse struct {
	TrackingNumber    string          `json:"trackingNumber"`
	EncodedLabel      string          `json:"encodedLabel"`
	Cost              string          `json:"cost"`
	Currency          string          `json:"currency"`
	EstimatedDelivery string          `json:"estimatedDelivery"`
	Errors            []fedexAPIError `json:"errors"`
}
