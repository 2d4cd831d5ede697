// Package draft implements draft persistence for in-progress listing
// sessions: change detection against the last saved snapshot, and an
// engine that batches snapshots to the local cache and the remote row
// store with debouncing, throttling and offline buffering.
package draft

import (
	"sync"

	"github.com/karsell/intake/internal/models"
)

// Detector decides whether the current form state differs from the last
// successfully saved snapshot. The baseline is only advanced after a
// confirmed remote save, so a failed write keeps the session dirty.
type Detector struct {
	mu            sync.Mutex
	lastSaved     *models.FormSnapshot
	lastCanonical string
}

func NewDetector() *Detector {
	return &Detector{}
}

// HasChanges reports whether a save is warranted. A session without a
// bound draft row always needs saving, as does one without a baseline.
// A cheap critical-field check runs before the full serialization compare.
func (d *Detector) HasChanges(current *models.FormSnapshot, draftID string) bool {
	if draftID == "" {
		return true
	}

	d.mu.Lock()
	baseline := d.lastSaved
	baselineCanonical := d.lastCanonical
	d.mu.Unlock()

	if baseline == nil {
		return true
	}
	if criticalFieldsDiffer(current, baseline) {
		return true
	}

	canonical, err := current.Canonical()
	if err != nil {
		// unserializable state cannot be compared; err on the side of saving
		return true
	}
	return canonical != baselineCanonical
}

// SetLastSaved advances the comparison baseline. Call only after the
// remote write was confirmed.
func (d *Detector) SetLastSaved(s *models.FormSnapshot) {
	canonical, err := s.Canonical()
	if err != nil {
		return
	}
	clone := s.Clone()

	d.mu.Lock()
	d.lastSaved = clone
	d.lastCanonical = canonical
	d.mu.Unlock()
}

// Reset drops the baseline, forcing the next check to report changes.
func (d *Detector) Reset() {
	d.mu.Lock()
	d.lastSaved = nil
	d.lastCanonical = ""
	d.mu.Unlock()
}

// criticalFieldsDiffer compares the vehicle-identity fields whose change
// always forces a save regardless of the full comparison outcome.
func criticalFieldsDiffer(a, b *models.FormSnapshot) bool {
	return a.VIN != b.VIN ||
		a.Make != b.Make ||
		a.Model != b.Model ||
		a.Year != b.Year ||
		a.Mileage != b.Mileage ||
		a.Transmission != b.Transmission
}
