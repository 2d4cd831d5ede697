package models

import "encoding/json"

// CalcValuation is the nested pricing block produced by the auto-valuation
// upstream. Any of the three prices may be absent (zero).
type CalcValuation struct {
	Price    float64 `json:"price"`
	PriceMin float64 `json:"price_min"`
	PriceMed float64 `json:"price_med"`
}

// ValuationDetails wraps CalcValuation inside the upstream function response.
type ValuationDetails struct {
	CalcValuation *CalcValuation `json:"calcValuation,omitempty"`
}

// FunctionResponse is the outermost known envelope of the valuation flow.
type FunctionResponse struct {
	Valuation *ValuationDetails `json:"valuation,omitempty"`
}

// ValuationPayload is the externally produced appraisal blob. The typed
// fields cover the attributes this service consumes; Raw keeps the full
// payload for price extraction across unknown shapes and for opaque
// passthrough onto the listing row.
type ValuationPayload struct {
	Make    string `json:"make"`
	Model   string `json:"model"`
	Year    int    `json:"year"`
	VIN     string `json:"vin"`
	Mileage int    `json:"mileage"`

	FunctionResponse *FunctionResponse `json:"functionResponse,omitempty"`

	Raw json.RawMessage `json:"-"`
}

// DecodeValuation parses a raw payload, keeping the original bytes.
func DecodeValuation(raw []byte) (*ValuationPayload, error) {
	var p ValuationPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, err
	}
	p.Raw = append(json.RawMessage(nil), raw...)
	return &p, nil
}
