package provenance

import "provenly.org/internal/ledger"

// Timeline is pure pagination state over an ownership history: one record
// per page, with moves clamped to the sequence bounds. The zero-length
// timeline stays on page 0 and yields no record.
type Timeline struct {
	records []ledger.OwnershipRecord
	active  int
}

func NewTimeline(records []ledger.OwnershipRecord) *Timeline {
	return &Timeline{records: records}
}

// Len returns the number of pages.
func (t *Timeline) Len() int { return len(t.records) }

// Active returns the current page index.
func (t *Timeline) Active() int { return t.active }

// Record returns the record on the active page.
func (t *Timeline) Record() (ledger.OwnershipRecord, bool) {
	if t.active < 0 || t.active >= len(t.records) {
		return ledger.OwnershipRecord{}, false
	}
	return t.records[t.active], true
}

// Forward advances one page, clamping at the last page.
func (t *Timeline) Forward() int {
	if t.active < len(t.records)-1 {
		t.active++
	}
	return t.active
}

// Backward moves back one page, clamping at the first page.
func (t *Timeline) Backward() int {
	if t.active > 0 {
		t.active--
	}
	return t.active
}

// Go jumps to page i when it is a valid index; out-of-range jumps are
// ignored.
func (t *Timeline) Go(i int) int {
	if i >= 0 && i < len(t.records) {
		t.active = i
	}
	return t.active
}
