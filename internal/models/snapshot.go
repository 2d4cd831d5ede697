// Package models defines the intake-side data model: the mutable form
// snapshot a seller edits across steps, the externally supplied valuation
// payload, and helpers for turning a snapshot into a storable listing row.
package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// FileRef points at an uploaded photo or document in the blob store.
// Raw bytes never live on the snapshot; a file is identified by its
// (Name, Size) fingerprint plus the blob path once the upload succeeded,
// so re-selecting an identical file does not register as a change.
type FileRef struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
	Path string `json:"path,omitempty"`
}

// Fingerprint returns the comparison identity of the file.
func (f FileRef) Fingerprint() string {
	return fmt.Sprintf("%s:%d", f.Name, f.Size)
}

// DamageReport describes one reported damage on the vehicle.
type DamageReport struct {
	Type        string   `json:"type"`
	Description string   `json:"description"`
	Location    string   `json:"location,omitempty"`
	Severity    string   `json:"severity,omitempty"`
	Photo       *FileRef `json:"photo,omitempty"`
}

// ServiceRecord is one entry of the vehicle's service history together
// with any uploaded supporting documents.
type ServiceRecord struct {
	Date        string    `json:"date,omitempty"`
	Description string    `json:"description,omitempty"`
	Mileage     int       `json:"mileage,omitempty"`
	Documents   []FileRef `json:"documents,omitempty"`
}

// ServiceHistory holds the service-history section of the form.
type ServiceHistory struct {
	HasHistory bool            `json:"hasHistory"`
	Records    []ServiceRecord `json:"records,omitempty"`
}

// PersonalDetails is the seller-details section of the form.
type PersonalDetails struct {
	Name         string `json:"name"`
	Email        string `json:"email"`
	MobileNumber string `json:"mobileNumber"`
	City         string `json:"city,omitempty"`
	PostalCode   string `json:"postalCode,omitempty"`
}

// FormMeta is transient per-session bookkeeping. It is excluded from
// change comparison and never persisted to the listing row.
type FormMeta struct {
	Step        int       `json:"step"`
	LastSavedAt time.Time `json:"lastSavedAt"`
}

// FormSnapshot is the complete state of one in-progress listing draft.
// Every form section mutates it; the draft engine persists it; the
// submission reconciler converts it into a finalized listing row.
type FormSnapshot struct {
	SellerID string `json:"sellerId"`
	// DraftID stays empty until the first remote save succeeds.
	DraftID string `json:"draftId,omitempty"`

	VIN          string `json:"vin"`
	Make         string `json:"make"`
	Model        string `json:"model"`
	Year         int    `json:"year"`
	Mileage      int    `json:"mileage"`
	Transmission string `json:"transmission"`

	IsDamaged            bool `json:"isDamaged"`
	HasPrivatePlate      bool `json:"hasPrivatePlate"`
	IsRegisteredInPoland bool `json:"isRegisteredInPoland"`

	DamageReports  []DamageReport  `json:"damageReports,omitempty"`
	ServiceHistory ServiceHistory  `json:"serviceHistory"`
	Photos         []FileRef       `json:"photos,omitempty"`
	Personal       PersonalDetails `json:"personal"`
	Features       map[string]bool `json:"features,omitempty"`

	Meta FormMeta `json:"-"`
}

// Clone returns a deep copy so the engine can snapshot form state without
// racing later edits.
func (s *FormSnapshot) Clone() *FormSnapshot {
	if s == nil {
		return nil
	}
	c := *s
	c.DamageReports = append([]DamageReport(nil), s.DamageReports...)
	for i, d := range c.DamageReports {
		if d.Photo != nil {
			p := *d.Photo
			c.DamageReports[i].Photo = &p
		}
	}
	c.ServiceHistory.Records = append([]ServiceRecord(nil), s.ServiceHistory.Records...)
	for i, r := range c.ServiceHistory.Records {
		c.ServiceHistory.Records[i].Documents = append([]FileRef(nil), r.Documents...)
	}
	c.Photos = append([]FileRef(nil), s.Photos...)
	if s.Features != nil {
		c.Features = make(map[string]bool, len(s.Features))
		for k, v := range s.Features {
			c.Features[k] = v
		}
	}
	return &c
}

// Canonical serializes the snapshot for structural comparison. Volatile
// fields (Meta, blob paths) are excluded and files are reduced to their
// fingerprints, so two snapshots compare equal exactly when a save would
// be redundant.
func (s *FormSnapshot) Canonical() (string, error) {
	if s == nil {
		return "", nil
	}
	c := s.Clone()
	c.Meta = FormMeta{}
	for i := range c.Photos {
		c.Photos[i].Path = ""
	}
	for i := range c.DamageReports {
		if c.DamageReports[i].Photo != nil {
			c.DamageReports[i].Photo.Path = ""
		}
	}
	for i := range c.ServiceHistory.Records {
		for j := range c.ServiceHistory.Records[i].Documents {
			c.ServiceHistory.Records[i].Documents[j].Path = ""
		}
	}
	b, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("canonical marshal: %w", err)
	}
	return string(b), nil
}

// ValidateSections enforces cross-field section rules that the data model
// itself does not: a damaged vehicle must carry at least one damage report.
func (s *FormSnapshot) ValidateSections() error {
	if s.IsDamaged && len(s.DamageReports) == 0 {
		return fmt.Errorf("damageReports: required when vehicle is marked damaged")
	}
	return nil
}
