package clinical

import "time"

// TransferStatus is the per-subject running status of spec.md §3/§4.3: a
// success flag, the two timestamps, the last error kind, and a count of
// transfers still awaiting acknowledgement (always zero in this emitter,
// since "successful transfer" terminates at file write — spec.md §9).
type TransferStatus struct {
	SubjectID             string    `json:"subjectId"`
	HasSuccessfulTransfer bool      `json:"hasSuccessfulTransfer"`
	LastSuccessfulAt      time.Time `json:"lastSuccessfulAt,omitempty"`
	LastAttemptAt         time.Time `json:"lastAttemptAt"`
	LastErrorKind         string    `json:"lastErrorKind,omitempty"`
	PendingCount          int       `json:"pendingCount"`
	TransferCount         int       `json:"transferCount"`
}

// Key implements filestore.Entry.
func (t TransferStatus) Key() string { return t.SubjectID }

// ExpiresAt implements filestore.Entry: status records never expire.
func (t TransferStatus) ExpiresAt() time.Time { return time.Time{} }

// recordSuccess updates a status record for one successful GDT emission at
// now, incrementing its transfer counter (spec.md §4.3 Process endpoint).
func recordSuccess(current TransferStatus, found bool, subjectID string, now time.Time) TransferStatus {
	if !found {
		current = TransferStatus{SubjectID: subjectID}
	}
	current.HasSuccessfulTransfer = true
	current.LastSuccessfulAt = now
	current.LastAttemptAt = now
	current.LastErrorKind = ""
	current.TransferCount++
	return current
}

// recordFailure updates a status record for a failed attempt, without
// touching the success flag or counter.
func recordFailure(current TransferStatus, found bool, subjectID, errorKind string, now time.Time) TransferStatus {
	if !found {
		current = TransferStatus{SubjectID: subjectID}
	}
	current.LastAttemptAt = now
	current.LastErrorKind = errorKind
	return current
}
