package access

import (
	"testing"

	"github.com/developer387/doorbell-app-sub000/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func roster(ids ...string) []*domain.SmartLock {
	out := make([]*domain.SmartLock, 0, len(ids))
	for _, id := range ids {
		out = append(out, &domain.SmartLock{DeviceID: id, DisplayName: "Lock " + id, Manufacturer: "august"})
	}
	return out
}

func TestResolveAllowedLocksNormalizesIDs(t *testing.T) {
	guest := &domain.Guest{AllowedLocks: []string{"LOCK_1 "}}

	result := ResolveAllowedLocks(guest, roster("lock_1", "lock_2"))

	require.Equal(t, domain.LocksLoaded, result.Kind)
	require.Len(t, result.Locks, 1)
	assert.Equal(t, "lock_1", result.Locks[0].DeviceID)
}

func TestResolveAllowedLocksEmptyAllowList(t *testing.T) {
	result := ResolveAllowedLocks(&domain.Guest{AllowedLocks: []string{}}, roster("lock_1"))
	assert.Equal(t, domain.NoAssignedLocks, result.Kind)
	assert.Empty(t, result.Locks)

	result = ResolveAllowedLocks(&domain.Guest{AllowedLocks: []string{"  "}}, roster("lock_1"))
	assert.Equal(t, domain.NoAssignedLocks, result.Kind)
}

func TestResolveAllowedLocksEmptyRoster(t *testing.T) {
	for _, guest := range []*domain.Guest{nil, {AllowedLocks: []string{"lock_1"}}, {}} {
		result := ResolveAllowedLocks(guest, nil)
		assert.Equal(t, domain.NoLocksAvailable, result.Kind)

		result = ResolveAllowedLocks(guest, []*domain.SmartLock{nil, nil})
		assert.Equal(t, domain.NoLocksAvailable, result.Kind)
	}
}

func TestResolveAllowedLocksMasterGetsFullRoster(t *testing.T) {
	locks := roster("a", "b")
	locks = append(locks, nil)

	result := ResolveAllowedLocks(nil, locks)

	require.Equal(t, domain.LocksLoaded, result.Kind)
	assert.Equal(t, []string{"a", "b"}, deviceIDs(result.Locks))
}

func TestResolveAllowedLocksRevokedLockDisappears(t *testing.T) {
	guest := &domain.Guest{AllowedLocks: []string{"front", "garage"}}

	before := ResolveAllowedLocks(guest, roster("front", "garage"))
	after := ResolveAllowedLocks(guest, roster("front"))

	assert.Equal(t, []string{"front", "garage"}, deviceIDs(before.Locks))
	assert.Equal(t, []string{"front"}, deviceIDs(after.Locks))

	gone := ResolveAllowedLocks(guest, roster("back"))
	assert.Equal(t, domain.NoAssignedLocks, gone.Kind)
}

func TestResolveVerdictLocks(t *testing.T) {
	locks := roster("front", "back")
	guest := &domain.Guest{AllowedLocks: []string{"BACK"}}

	master := ResolveVerdictLocks(domain.AccessVerdict{Kind: domain.VerdictMasterAccess}, locks)
	assert.Len(t, master.Locks, 2)

	valid := ResolveVerdictLocks(domain.AccessVerdict{Kind: domain.VerdictValid, Guest: guest}, locks)
	assert.Equal(t, []string{"back"}, deviceIDs(valid.Locks))

	expired := ResolveVerdictLocks(domain.AccessVerdict{Kind: domain.VerdictExpired, Guest: guest}, locks)
	assert.Equal(t, domain.NoAssignedLocks, expired.Kind)
}

func deviceIDs(locks []*domain.SmartLock) []string {
	out := make([]string, 0, len(locks))
	for _, l := range locks {
		out = append(out, l.DeviceID)
	}
	return out
}
