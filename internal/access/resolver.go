// Package access decides who may operate which locks. Everything here is a
// pure function of its inputs; callers pass the current time and the
// current rosters on every evaluation.
package access

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/developer387/doorbell-app-sub000/internal/domain"
)

// GraceBuffer widens both edges of a guest's access window.
const GraceBuffer = time.Minute

const pinLength = 4

// ResolveGuestAccess maps a submitted PIN to a verdict. A nil masterPIN means
// the property has no owner code configured.
func ResolveGuestAccess(pin string, guests []*domain.Guest, masterPIN *string, now time.Time) domain.AccessVerdict {
	if !isPIN(pin) {
		return domain.AccessVerdict{Kind: domain.VerdictInvalidPIN}
	}

	if masterPIN != nil && *masterPIN != "" && *masterPIN == strings.TrimSpace(pin) {
		return domain.AccessVerdict{Kind: domain.VerdictMasterAccess}
	}

	var guest *domain.Guest
	for _, g := range guests {
		if g != nil && g.AccessPIN == pin {
			guest = g
			break
		}
	}
	if guest == nil {
		return domain.AccessVerdict{Kind: domain.VerdictInvalidPIN}
	}

	start, errStart := parseInstant(guest.StartTime)
	end, errEnd := parseInstant(guest.EndTime)
	if errStart != nil || errEnd != nil {
		// Unparsable windows fail open. See DESIGN.md.
		return domain.AccessVerdict{Kind: domain.VerdictValid, Guest: guest}
	}

	switch {
	case now.Before(start.Add(-GraceBuffer)):
		return domain.AccessVerdict{Kind: domain.VerdictNotYetActive, Guest: guest}
	case now.After(end.Add(GraceBuffer)):
		return domain.AccessVerdict{Kind: domain.VerdictExpired, Guest: guest}
	default:
		return domain.AccessVerdict{Kind: domain.VerdictValid, Guest: guest}
	}
}

// GeneratePIN returns a uniformly random 4-digit PIN.
func GeneratePIN() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(10000))
	if err != nil {
		return "", fmt.Errorf("access.GeneratePIN: %w", err)
	}
	return fmt.Sprintf("%04d", n.Int64()), nil
}

func isPIN(pin string) bool {
	if len(pin) != pinLength {
		return false
	}
	for i := 0; i < len(pin); i++ {
		if pin[i] < '0' || pin[i] > '9' {
			return false
		}
	}
	return true
}

var instantLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.000Z0700",
	"2006-01-02T15:04:05",
}

func parseInstant(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	var lastErr error
	for _, layout := range instantLayouts {
		t, err := time.Parse(layout, value)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}
