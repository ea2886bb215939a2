package domain

import "time"

type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
	ApprovalExpired  ApprovalStatus = "expired"
)

// Valid reports whether s is one of the known statuses.
func (s ApprovalStatus) Valid() bool {
	switch s {
	case ApprovalPending, ApprovalApproved, ApprovalRejected, ApprovalExpired:
		return true
	}
	return false
}

// Terminal reports whether no further transition is possible.
func (s ApprovalStatus) Terminal() bool {
	return s != ApprovalPending
}

// ApprovalSlot records one human approval.
type ApprovalSlot struct {
	ApprovedAt *time.Time
	Approver   string // external reference of who approved, may be empty
}

func (s ApprovalSlot) Filled() bool { return s.ApprovedAt != nil }

// ApprovalRequest tracks a suspicious login waiting on two approvers.
type ApprovalRequest struct {
	ID        string // UUIDv4
	UserID    string
	Status    ApprovalStatus
	CreatedAt time.Time
	ExpiresAt time.Time

	Slot1 ApprovalSlot
	Slot2 ApprovalSlot

	// ConsumedAt is set once credentials were issued for the request.
	ConsumedAt *time.Time

	RequestIP        string
	RequestUserAgent string

	// Version is bumped on every write and guards compare-and-swap updates.
	Version int64
}

// EffectiveStatus is the status a reader must observe at now. Once now is
// past ExpiresAt a pending request, or an approved one whose credentials
// were never collected, reads as expired even if storage lags behind.
// Rejections and consumed approvals keep their stored status for audit.
func (r ApprovalRequest) EffectiveStatus(now time.Time) ApprovalStatus {
	if !now.After(r.ExpiresAt) {
		return r.Status
	}
	switch {
	case r.Status == ApprovalPending:
		return ApprovalExpired
	case r.Status == ApprovalApproved && r.ConsumedAt == nil:
		return ApprovalExpired
	}
	return r.Status
}

// HasApprover reports whether approver already holds one of the slots.
func (r ApprovalRequest) HasApprover(approver string) bool {
	if approver == "" {
		return false
	}
	return (r.Slot1.Filled() && r.Slot1.Approver == approver) ||
		(r.Slot2.Filled() && r.Slot2.Approver == approver)
}

// ApprovalCount returns how many slots are filled.
func (r ApprovalRequest) ApprovalCount() int {
	n := 0
	if r.Slot1.Filled() {
		n++
	}
	if r.Slot2.Filled() {
		n++
	}
	return n
}
