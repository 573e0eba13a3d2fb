package domain

type VerdictKind string

const (
	VerdictValid        VerdictKind = "valid"
	VerdictInvalidPIN   VerdictKind = "invalid_pin"
	VerdictNotYetActive VerdictKind = "not_yet_active"
	VerdictExpired      VerdictKind = "expired"
	VerdictMasterAccess VerdictKind = "master_access"
)

// AccessVerdict is computed per PIN submission and never stored.
// Guest is set for valid, not_yet_active and expired.
type AccessVerdict struct {
	Kind  VerdictKind `json:"kind"`
	Guest *Guest      `json:"guest,omitempty"`
}

// Grants reports whether the verdict carries lock authority.
func (v AccessVerdict) Grants() bool {
	return v.Kind == VerdictValid || v.Kind == VerdictMasterAccess
}

// Message is the guest-facing explanation for the verdict.
func (v AccessVerdict) Message() string {
	switch v.Kind {
	case VerdictValid:
		return "Access granted"
	case VerdictMasterAccess:
		return "Owner access granted"
	case VerdictNotYetActive:
		return "Your access is not active yet"
	case VerdictExpired:
		return "Your access has expired"
	default:
		return "Incorrect PIN"
	}
}

type LockAuthorizationKind string

const (
	LocksLoaded      LockAuthorizationKind = "locks_loaded"
	NoAssignedLocks  LockAuthorizationKind = "no_assigned_locks"
	NoLocksAvailable LockAuthorizationKind = "no_locks_available"
)

type LockAuthorization struct {
	Kind  LockAuthorizationKind `json:"kind"`
	Locks []*SmartLock          `json:"locks,omitempty"`
}
