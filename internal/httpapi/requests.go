package httpapi

import (
	"time"

	"github.com/karsell/intake/internal/models"
)

// openRequest opens a fresh session or reattaches to a previous one.
type openRequest struct {
	SessionID string `json:"sessionId,omitempty"`
	DraftID   string `json:"draftId,omitempty"`
}

// updateRequest is a partial form update. Only non-nil fields are
// applied, so a section can PATCH just what it edited.
type updateRequest struct {
	VIN          *string `json:"vin,omitempty"`
	Make         *string `json:"make,omitempty"`
	Model        *string `json:"model,omitempty"`
	Year         *int    `json:"year,omitempty"`
	Mileage      *int    `json:"mileage,omitempty"`
	Transmission *string `json:"transmission,omitempty"`

	IsDamaged            *bool `json:"isDamaged,omitempty"`
	HasPrivatePlate      *bool `json:"hasPrivatePlate,omitempty"`
	IsRegisteredInPoland *bool `json:"isRegisteredInPoland,omitempty"`

	DamageReports  []models.DamageReport   `json:"damageReports,omitempty"`
	ServiceHistory *models.ServiceHistory  `json:"serviceHistory,omitempty"`
	Personal       *models.PersonalDetails `json:"personal,omitempty"`
	Features       map[string]bool         `json:"features,omitempty"`

	Step *int `json:"step,omitempty"`
}

func (u *updateRequest) apply(s *models.FormSnapshot) {
	if u.VIN != nil {
		s.VIN = *u.VIN
	}
	if u.Make != nil {
		s.Make = *u.Make
	}
	if u.Model != nil {
		s.Model = *u.Model
	}
	if u.Year != nil {
		s.Year = *u.Year
	}
	if u.Mileage != nil {
		s.Mileage = *u.Mileage
	}
	if u.Transmission != nil {
		s.Transmission = *u.Transmission
	}
	if u.IsDamaged != nil {
		s.IsDamaged = *u.IsDamaged
	}
	if u.HasPrivatePlate != nil {
		s.HasPrivatePlate = *u.HasPrivatePlate
	}
	if u.IsRegisteredInPoland != nil {
		s.IsRegisteredInPoland = *u.IsRegisteredInPoland
	}
	if u.DamageReports != nil {
		s.DamageReports = u.DamageReports
	}
	if u.ServiceHistory != nil {
		s.ServiceHistory = *u.ServiceHistory
	}
	if u.Personal != nil {
		s.Personal = *u.Personal
	}
	if u.Features != nil {
		s.Features = u.Features
	}
	if u.Step != nil {
		s.Meta.Step = *u.Step
	}
}

// sessionResponse is the canonical session view clients work against.
type sessionResponse struct {
	Success     bool                 `json:"success"`
	SessionID   string               `json:"sessionId"`
	DraftID     string               `json:"draftId,omitempty"`
	Step        int                  `json:"step"`
	LastSavedAt *time.Time           `json:"lastSavedAt,omitempty"`
	Snapshot    *models.FormSnapshot `json:"snapshot"`
}

func newSessionResponse(sessionID string, snap *models.FormSnapshot) sessionResponse {
	resp := sessionResponse{
		Success:   true,
		SessionID: sessionID,
		DraftID:   snap.DraftID,
		Step:      snap.Meta.Step,
		Snapshot:  snap,
	}
	if !snap.Meta.LastSavedAt.IsZero() {
		t := snap.Meta.LastSavedAt
		resp.LastSavedAt = &t
	}
	return resp
}

type submitResponse struct {
	Success   bool   `json:"success"`
	ListingID string `json:"listingId"`
}

type uploadResponse struct {
	Success bool   `json:"success"`
	Path    string `json:"path"`
	URL     string `json:"url,omitempty"`
}

type okResponse struct {
	Success bool `json:"success"`
}
