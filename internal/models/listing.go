package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Listing mirrors one row of the listings table as read back from storage.
// Draft rows keep the full form snapshot; finalized rows additionally carry
// the computed prices.
type Listing struct {
	ID           string
	SellerID     string
	VIN          string
	Title        string
	IsDraft      bool
	Price        float64
	ReservePrice float64
	Mileage      int
	Snapshot     *FormSnapshot
	UpdatedAt    time.Time
}

// knownFeatures is the fixed set of feature columns on the listings table.
// Unrecognized keys from the form are dropped, missing ones default false.
var knownFeatures = []string{
	"airConditioning",
	"alloyWheels",
	"bluetooth",
	"cruiseControl",
	"heatedSeats",
	"leatherSeats",
	"navigation",
	"parkingSensors",
	"sunroof",
	"towHook",
}

// NormalizeFeatures maps the free-form feature flags of a snapshot onto the
// fixed storable set.
func NormalizeFeatures(in map[string]bool) map[string]bool {
	out := make(map[string]bool, len(knownFeatures))
	for _, k := range knownFeatures {
		out[k] = in[k]
	}
	return out
}

// ListingTitle derives the display title for a listing.
func ListingTitle(make_, model string, year int) string {
	return fmt.Sprintf("%s %s %d", make_, model, year)
}

// MarshalSnapshot serializes a snapshot for the JSONB column.
func MarshalSnapshot(s *FormSnapshot) (json.RawMessage, error) {
	if s == nil {
		return nil, nil
	}
	return json.Marshal(s)
}
