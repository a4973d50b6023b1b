package models

import "time"

// AuditAction enumerates recorded admin and auth actions.
type AuditAction string

const (
	AuditActionLogin          AuditAction = "LOGIN"
	AuditActionLogout         AuditAction = "LOGOUT"
	AuditActionPasswordChange AuditAction = "PASSWORD_CHANGE"
	AuditActionApprove        AuditAction = "ENROLLMENT_APPROVE"
	AuditActionReject         AuditAction = "ENROLLMENT_REJECT"
	AuditActionCancel         AuditAction = "ENROLLMENT_CANCEL"
	AuditActionRecount        AuditAction = "COURSE_RECOUNT"
)

// AuditLog records who did what to which resource. Writes are best-effort.
type AuditLog struct {
	ID         string      `db:"id" json:"id"`
	UserID     *string     `db:"user_id" json:"user_id,omitempty"`
	Action     AuditAction `db:"action" json:"action"`
	Resource   string      `db:"resource" json:"resource"`
	ResourceID *string     `db:"resource_id" json:"resource_id,omitempty"`
	Detail     []byte      `db:"detail" json:"detail,omitempty"`
	IPAddress  string      `db:"ip_address" json:"ip_address"`
	UserAgent  string      `db:"user_agent" json:"user_agent"`
	CreatedAt  time.Time   `db:"created_at" json:"created_at"`
}
