package event

import "time"

const (
	ActionCheckout      = "loan.checkout"
	ActionReturn        = "loan.return"
	ActionRenew         = "loan.renew"
	ActionBan           = "member.ban"
	ActionUnban         = "member.unban"
	ActionOverdueNotice = "loan.overdue_notice"
)

// AuditEntry is the single record every mutating circulation operation emits.
// Before and After hold only the key fields the operation changed.
type AuditEntry struct {
	Action     string         `json:"action"`
	Actor      string         `json:"actor"`
	TargetType string         `json:"targetType"`
	TargetID   string         `json:"targetId"`
	Timestamp  time.Time      `json:"timestamp"`
	Before     map[string]any `json:"before,omitempty"`
	After      map[string]any `json:"after,omitempty"`
}

func NewAuditEntry(action, actor, targetType, targetID string) AuditEntry {
	return AuditEntry{
		Action:     action,
		Actor:      actor,
		TargetType: targetType,
		TargetID:   targetID,
		Timestamp:  time.Now(),
	}
}
