package submit

import (
	"encoding/json"
	"time"

	"github.com/karsell/intake/internal/models"
	"github.com/karsell/intake/internal/pricing"
	"github.com/karsell/intake/internal/storage/listings"
)

// staticColumns is the fallback column allowlist used when schema
// introspection is unavailable. It must track the baseline migration.
var staticColumns = []string{
	"id", "seller_id", "vin", "make", "model", "year", "mileage",
	"transmission", "title", "price", "reserve_price", "is_draft",
	"is_damaged", "has_private_plate", "is_registered_in_poland",
	"seller_name", "mobile_number", "email", "city", "postal_code",
	"features", "damage_reports", "service_history", "photos",
	"snapshot", "valuation_data", "created_at", "updated_at",
}

// buildRow assembles the database-ready listing entity from the form
// snapshot and the resolved valuation signals. Personal fields are
// renamed to their storage columns here; features are normalized onto the
// fixed boolean set.
func buildRow(snap *models.FormSnapshot, val *models.ValuationPayload, vin string, price float64, mileage int) listings.Row {
	make_, model, year := snap.Make, snap.Model, snap.Year
	if make_ == "" {
		make_ = val.Make
	}
	if model == "" {
		model = val.Model
	}
	if year == 0 {
		year = val.Year
	}

	row := listings.Row{
		"seller_id":               snap.SellerID,
		"vin":                     vin,
		"make":                    make_,
		"model":                   model,
		"year":                    year,
		"title":                   models.ListingTitle(make_, model, year),
		"price":                   price,
		"reserve_price":           pricing.Reserve(price),
		"mileage":                 mileage,
		"transmission":            snap.Transmission,
		"is_damaged":              snap.IsDamaged,
		"has_private_plate":       snap.HasPrivatePlate,
		"is_registered_in_poland": snap.IsRegisteredInPoland,
		"seller_name":             snap.Personal.Name,
		"mobile_number":           snap.Personal.MobileNumber,
		"email":                   snap.Personal.Email,
		"city":                    snap.Personal.City,
		"postal_code":             snap.Personal.PostalCode,
		"updated_at":              time.Now(),
	}

	if b, err := json.Marshal(models.NormalizeFeatures(snap.Features)); err == nil {
		row["features"] = b
	}
	if len(snap.DamageReports) > 0 {
		if b, err := json.Marshal(snap.DamageReports); err == nil {
			row["damage_reports"] = b
		}
	}
	if b, err := json.Marshal(snap.ServiceHistory); err == nil {
		row["service_history"] = b
	}
	if len(snap.Photos) > 0 {
		if b, err := json.Marshal(snap.Photos); err == nil {
			row["photos"] = b
		}
	}
	if len(val.Raw) > 0 {
		row["valuation_data"] = []byte(val.Raw)
	}
	return row
}

// filterRow drops every key that is not a live column. Unknown fields are
// silently discarded rather than failing the write.
func filterRow(row listings.Row, cols map[string]struct{}) listings.Row {
	filtered := make(listings.Row, len(row))
	for k, v := range row {
		if _, ok := cols[k]; ok {
			filtered[k] = v
		}
	}
	return filtered
}

// staticColumnSet returns the fallback allowlist as a set.
func staticColumnSet() map[string]struct{} {
	cols := make(map[string]struct{}, len(staticColumns))
	for _, c := range staticColumns {
		cols[c] = struct{}{}
	}
	return cols
}
