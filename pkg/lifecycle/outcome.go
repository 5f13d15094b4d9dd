package lifecycle

import "linkvault-server/pkg/models"

// OutcomeKind names the result of resolving or verifying a link
type OutcomeKind int

const (
	OutcomeInvalid OutcomeKind = iota
	OutcomeExpired
	OutcomePasswordRequired
	OutcomeAlreadyConsumed
	OutcomeQuotaExhausted
	OutcomeDeliver
	OutcomeWrongPassword
	OutcomePasswordVerified
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeInvalid:
		return "invalid"
	case OutcomeExpired:
		return "expired"
	case OutcomePasswordRequired:
		return "password_required"
	case OutcomeAlreadyConsumed:
		return "already_consumed"
	case OutcomeQuotaExhausted:
		return "quota_exhausted"
	case OutcomeDeliver:
		return "deliver"
	case OutcomeWrongPassword:
		return "wrong_password"
	case OutcomePasswordVerified:
		return "password_verified"
	default:
		return "unknown"
	}
}

// IsTerminal reports whether retrying with other credentials can change the result
func (k OutcomeKind) IsTerminal() bool {
	switch k {
	case OutcomeInvalid, OutcomeExpired, OutcomeAlreadyConsumed, OutcomeQuotaExhausted:
		return true
	}
	return false
}

// Outcome is the result of a gate evaluation. Record is nil for OutcomeInvalid.
// For OutcomeDeliver it is the snapshot after the delivery mutation, or the
// last snapshot when the delivery deleted the record.
type Outcome struct {
	Kind   OutcomeKind
	Record *models.ContentRecord
}

// NeedsCompletion reports whether the caller must call CompleteDownload once
// the bytes have been transferred
func (o *Outcome) NeedsCompletion() bool {
	return o != nil &&
		o.Kind == OutcomeDeliver &&
		o.Record != nil &&
		o.Record.Kind == models.KindFile &&
		o.Record.Policy.IsOneTimeView()
}
