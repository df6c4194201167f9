package member

import "time"

type Member struct {
	MemberID        int64      `json:"memberId"`
	CardNumber      string     `json:"cardNumber"`
	Name            string     `json:"name"`
	MembershipStart time.Time  `json:"membershipStart"`
	MembershipEnd   time.Time  `json:"membershipEnd"`
	Banned          bool       `json:"banned"`
	BanCause        *string    `json:"banCause,omitempty"`
	BannedAt        *time.Time `json:"bannedAt,omitempty"`
	TotalLoans      int        `json:"totalLoans"`
	LateReturns     int        `json:"lateReturns"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

func NewMember(cardNumber, name string, membershipStart, membershipEnd time.Time) *Member {
	now := time.Now()
	return &Member{
		CardNumber:      cardNumber,
		Name:            name,
		MembershipStart: membershipStart,
		MembershipEnd:   membershipEnd,
		Banned:          false,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// MembershipValidAt reports whether the membership window covers the given
// instant. The end date is inclusive.
func (m *Member) MembershipValidAt(now time.Time) bool {
	return !now.Before(m.MembershipStart) && !now.After(m.MembershipEnd)
}

func (m *Member) ApplyBan(cause string, at time.Time) {
	m.Banned = true
	m.BanCause = &cause
	m.BannedAt = &at
	m.UpdatedAt = at
}

// LiftBan clears the ban. Lifting a ban that is not in place is a no-op.
func (m *Member) LiftBan() {
	if !m.Banned {
		return
	}
	m.Banned = false
	m.BanCause = nil
	m.BannedAt = nil
	m.UpdatedAt = time.Now()
}

func (m *Member) BanCauseText() string {
	if m.BanCause == nil {
		return ""
	}
	return *m.BanCause
}
