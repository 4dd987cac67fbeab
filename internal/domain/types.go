package domain

import "github.com/google/uuid"

type UserID = uuid.UUID
type DeviceID = uuid.UUID
type TokenID = uuid.UUID
type AuditLogID = uuid.UUID

// NetworkIdentity is what the boundary layer knows about the caller.
type NetworkIdentity struct {
	IP        string
	UserAgent string
	Path      string
	Method    string
}
