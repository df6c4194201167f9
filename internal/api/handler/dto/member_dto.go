package dto

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"circulation-engine/internal/domain/member"
)

type BanRequest struct {
	Cause      string `json:"cause"`
	OperatorID string `json:"operatorId"`
}

func (r *BanRequest) Validate() error {
	if strings.TrimSpace(r.Cause) == "" {
		return fmt.Errorf("cause is required")
	}
	if strings.TrimSpace(r.OperatorID) == "" {
		return fmt.Errorf("operatorId is required")
	}
	return nil
}

type UnbanRequest struct {
	OperatorID string `json:"operatorId"`
}

func (r *UnbanRequest) Validate() error {
	if strings.TrimSpace(r.OperatorID) == "" {
		return fmt.Errorf("operatorId is required")
	}
	return nil
}

type MemberResponse struct {
	MemberID        string     `json:"memberId"`
	CardNumber      string     `json:"cardNumber"`
	Name            string     `json:"name"`
	MembershipStart time.Time  `json:"membershipStart"`
	MembershipEnd   time.Time  `json:"membershipEnd"`
	Banned          bool       `json:"banned"`
	BanCause        string     `json:"banCause,omitempty"`
	BannedAt        *time.Time `json:"bannedAt,omitempty"`
	TotalLoans      int        `json:"totalLoans"`
	LateReturns     int        `json:"lateReturns"`
}

func NewMemberResponse(m *member.Member) MemberResponse {
	return MemberResponse{
		MemberID:        strconv.FormatInt(m.MemberID, 10),
		CardNumber:      m.CardNumber,
		Name:            m.Name,
		MembershipStart: m.MembershipStart,
		MembershipEnd:   m.MembershipEnd,
		Banned:          m.Banned,
		BanCause:        m.BanCauseText(),
		BannedAt:        m.BannedAt,
		TotalLoans:      m.TotalLoans,
		LateReturns:     m.LateReturns,
	}
}
