package onboarding

import (
	"fmt"
	"time"
)

// Record is the durable onboarding progress of one user.
type Record struct {
	UserID              int64
	State               State
	DisplayName         string
	Handle              string
	HasReferralKYC      TriState
	HasDeposit          TriState
	SubmittedIdentifier string
	UpdatedAt           time.Time
}

// NewRecord returns the default record materialized for an unknown user.
func NewRecord(userID int64) Record {
	return Record{UserID: userID, State: StateGreeting}
}

// Patch lists the fields an upsert changes. Nil fields are left untouched.
type Patch struct {
	State               *State
	DisplayName         *string
	Handle              *string
	HasReferralKYC      *TriState
	HasDeposit          *TriState
	SubmittedIdentifier *string
}

// Empty reports whether the patch changes nothing.
func (p Patch) Empty() bool {
	return p.State == nil && p.DisplayName == nil && p.Handle == nil &&
		p.HasReferralKYC == nil && p.HasDeposit == nil && p.SubmittedIdentifier == nil
}

// Merge returns p overlaid with the non-nil fields of o.
func (p Patch) Merge(o Patch) Patch {
	if o.State != nil {
		p.State = o.State
	}
	if o.DisplayName != nil {
		p.DisplayName = o.DisplayName
	}
	if o.Handle != nil {
		p.Handle = o.Handle
	}
	if o.HasReferralKYC != nil {
		p.HasReferralKYC = o.HasReferralKYC
	}
	if o.HasDeposit != nil {
		p.HasDeposit = o.HasDeposit
	}
	if o.SubmittedIdentifier != nil {
		p.SubmittedIdentifier = o.SubmittedIdentifier
	}
	return p
}

// Apply returns r with the patch merged in.
func (p Patch) Apply(r Record) Record {
	if p.State != nil {
		r.State = *p.State
	}
	if p.DisplayName != nil {
		r.DisplayName = *p.DisplayName
	}
	if p.Handle != nil {
		r.Handle = *p.Handle
	}
	if p.HasReferralKYC != nil {
		r.HasReferralKYC = *p.HasReferralKYC
	}
	if p.HasDeposit != nil {
		r.HasDeposit = *p.HasDeposit
	}
	if p.SubmittedIdentifier != nil {
		r.SubmittedIdentifier = *p.SubmittedIdentifier
	}
	return r
}

// Validate rejects patches that would leave a record in an unrepresented state.
func (p Patch) Validate() error {
	if p.State != nil && !p.State.Valid() {
		return fmt.Errorf("onboarding: patch carries invalid state %d", int(*p.State))
	}
	return nil
}

// SetState is a Patch with only the state set.
func SetState(s State) Patch { return Patch{State: &s} }

// Ptr returns a pointer to v, handy when building patches.
func Ptr[T any](v T) *T { return &v }

// ReviewCase is the snapshot shown to reviewers for a user awaiting approval.
type ReviewCase struct {
	UserID              int64
	DisplayName         string
	Handle              string
	HasReferralKYC      TriState
	HasDeposit          TriState
	SubmittedIdentifier string
}

// CaseFromRecord snapshots the reviewable fields of r.
func CaseFromRecord(r Record) ReviewCase {
	return ReviewCase{
		UserID:              r.UserID,
		DisplayName:         r.DisplayName,
		Handle:              r.Handle,
		HasReferralKYC:      r.HasReferralKYC,
		HasDeposit:          r.HasDeposit,
		SubmittedIdentifier: r.SubmittedIdentifier,
	}
}

// SupportRequest is a free-form issue description forwarded to reviewers.
type SupportRequest struct {
	UserID      int64
	DisplayName string
	Handle      string
	Text        string
}
