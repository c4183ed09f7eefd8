package sync

import (
	"time"

	"github.com/heartmarshall/eventsync/internal/domain"
)

// Reason explains a gate decision.
type Reason string

const (
	ReasonNew           Reason = "new"
	ReasonNoFingerprint Reason = "no_fingerprint"
	ReasonChanged       Reason = "changed"
	ReasonForced        Reason = "forced"
	ReasonMissingField  Reason = "missing_field"
	ReasonRefreshDue    Reason = "refresh_due"
	ReasonUnchanged     Reason = "unchanged"
)

// GatePolicy is the skip policy.
type GatePolicy struct {
	// ForceRefresh processes every row regardless of its fingerprint.
	ForceRefresh bool
	// RefreshAfter forces a row older than this through the gate. Zero disables it.
	RefreshAfter time.Duration
	// RequiredFields forces a row through while any of them is empty in the store.
	RequiredFields []string
}

// Decision is the outcome of Gate.Decide.
type Decision struct {
	Proceed     bool
	Reason      Reason
	Fingerprint string
	// Field is the first empty required field for ReasonMissingField.
	Field string
}

// Gate decides whether a listing row needs its detail fetched and its record
// rewritten. Decisions depend only on the row, the stored record and the clock.
type Gate struct {
	policy GatePolicy
	now    func() time.Time
}

// NewGate creates a Gate with the given policy.
func NewGate(p GatePolicy) *Gate {
	return &Gate{policy: p, now: time.Now}
}

// Decide compares the row against the stored record (nil when absent).
// Rows carrying their detail inline follow the same rules; refresh_after
// picks up changes outside the fingerprinted fields.
func (g *Gate) Decide(row domain.Row, prev *domain.Event) Decision {
	d := Decision{Proceed: true, Fingerprint: row.Fingerprint()}

	switch {
	case prev == nil:
		d.Reason = ReasonNew
	case prev.Fingerprint == "":
		d.Reason = ReasonNoFingerprint
	case prev.Fingerprint != d.Fingerprint:
		d.Reason = ReasonChanged
	case g.policy.ForceRefresh:
		d.Reason = ReasonForced
	default:
		if f := g.firstMissing(prev); f != "" {
			d.Reason, d.Field = ReasonMissingField, f
			return d
		}
		if g.policy.RefreshAfter > 0 && g.now().Sub(prev.LastSyncedAt) >= g.policy.RefreshAfter {
			d.Reason = ReasonRefreshDue
			return d
		}
		d.Proceed, d.Reason = false, ReasonUnchanged
	}
	return d
}

func (g *Gate) firstMissing(prev *domain.Event) string {
	for _, f := range g.policy.RequiredFields {
		if prev.IsEmpty(f) {
			return f
		}
	}
	return ""
}

// DecidePage applies the policy to a listing page whose rows a model derives.
// prev is the stored state of the page, nil when absent.
func (g *Gate) DecidePage(hash string, prev *domain.PageState) Decision {
	d := Decision{Proceed: true, Fingerprint: hash}

	switch {
	case prev == nil:
		d.Reason = ReasonNew
	case prev.Hash != hash:
		d.Reason = ReasonChanged
	case g.policy.ForceRefresh:
		d.Reason = ReasonForced
	case g.policy.RefreshAfter > 0 && g.now().Sub(prev.CheckedAt) >= g.policy.RefreshAfter:
		d.Reason = ReasonRefreshDue
	default:
		d.Proceed, d.Reason = false, ReasonUnchanged
	}
	return d
}
