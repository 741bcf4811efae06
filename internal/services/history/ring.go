// Package history keeps the last few scans of a session for operator reference.
package history

import (
	"sync"
	"time"

	"qrpay/internal/services/qr"
)

// DefaultCapacity is the number of scans retained.
const DefaultCapacity = 5

type Outcome string

const (
	OutcomePending  Outcome = "pending"
	OutcomeSettled  Outcome = "settled"
	OutcomeRejected Outcome = "rejected"
)

// Source is how the raw text was acquired.
type Source string

const (
	SourceCamera Source = "camera"
	SourceManual Source = "manual"
)

type Record struct {
	ID        string     `json:"id"`
	Payload   qr.Payload `json:"payload"`
	Timestamp time.Time  `json:"timestamp"`
	Source    Source     `json:"source,omitempty"`
	Outcome   Outcome    `json:"outcome"`
	Reason    string     `json:"reason,omitempty"`
}

// Ring is a fixed-capacity, newest-first log. The oldest record is dropped silently.
type Ring struct {
	mu       sync.RWMutex
	records  []Record
	capacity int
}

func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Ring{capacity: capacity, records: make([]Record, 0, capacity)}
}

// Record prepends rec and truncates to capacity.
func (r *Ring) Record(rec Record) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.records) < r.capacity {
		r.records = append(r.records, Record{})
	}
	copy(r.records[1:], r.records[:len(r.records)-1])
	r.records[0] = rec
}

// Resolve sets the outcome of a retained record. It reports false once the record was evicted.
func (r *Ring) Resolve(id string, outcome Outcome, reason string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.records {
		if r.records[i].ID == id {
			r.records[i].Outcome = outcome
			r.records[i].Reason = reason
			return true
		}
	}
	return false
}

// All returns a copy of the records, newest first.
func (r *Ring) All() []Record {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Record, len(r.records))
	copy(out, r.records)
	return out
}

