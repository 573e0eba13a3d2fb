package access

import (
	"strings"

	"github.com/developer387/doorbell-app-sub000/internal/domain"
)

// ResolveAllowedLocks intersects a guest's allow-list with the roster as it
// is right now. A nil guest stands for master access and gets the whole roster.
func ResolveAllowedLocks(guest *domain.Guest, roster []*domain.SmartLock) domain.LockAuthorization {
	locks := make([]*domain.SmartLock, 0, len(roster))
	for _, l := range roster {
		if l == nil {
			continue
		}
		locks = append(locks, l)
	}

	if len(locks) == 0 {
		return domain.LockAuthorization{Kind: domain.NoLocksAvailable}
	}

	if guest == nil {
		return domain.LockAuthorization{Kind: domain.LocksLoaded, Locks: locks}
	}

	allowed := make(map[string]struct{}, len(guest.AllowedLocks))
	for _, id := range guest.AllowedLocks {
		if key := NormalizeLockID(id); key != "" {
			allowed[key] = struct{}{}
		}
	}
	if len(allowed) == 0 {
		return domain.LockAuthorization{Kind: domain.NoAssignedLocks}
	}

	subset := make([]*domain.SmartLock, 0, len(allowed))
	for _, l := range locks {
		if _, ok := allowed[NormalizeLockID(l.DeviceID)]; ok {
			subset = append(subset, l)
		}
	}
	if len(subset) == 0 {
		return domain.LockAuthorization{Kind: domain.NoAssignedLocks}
	}

	return domain.LockAuthorization{Kind: domain.LocksLoaded, Locks: subset}
}

// ResolveVerdictLocks resolves the lock subset a verdict carries authority over.
func ResolveVerdictLocks(verdict domain.AccessVerdict, roster []*domain.SmartLock) domain.LockAuthorization {
	switch verdict.Kind {
	case domain.VerdictMasterAccess:
		return ResolveAllowedLocks(nil, roster)
	case domain.VerdictValid:
		if verdict.Guest == nil {
			return domain.LockAuthorization{Kind: domain.NoAssignedLocks}
		}
		return ResolveAllowedLocks(verdict.Guest, roster)
	default:
		return domain.LockAuthorization{Kind: domain.NoAssignedLocks}
	}
}

// NormalizeLockID folds case and strips incidental whitespace.
func NormalizeLockID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

// ContainsLock reports whether locks holds id under normalization.
func ContainsLock(locks []*domain.SmartLock, id string) (*domain.SmartLock, bool) {
	key := NormalizeLockID(id)
	for _, l := range locks {
		if l != nil && NormalizeLockID(l.DeviceID) == key {
			return l, true
		}
	}
	return nil, false
}
