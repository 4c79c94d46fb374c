package scheduling

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/scheduler-api/internal/model"
)

// ConflictScope decides whose bookings can collide with a request.
type ConflictScope string

const (
	// ScopeOwner only compares bookings of the same owner and platform.
	ScopeOwner ConflictScope = "owner"
	// ScopePlatform compares every tenant's bookings on the platform.
	ScopePlatform ConflictScope = "platform"
)

func ParseConflictScope(s string) (ConflictScope, error) {
	switch ConflictScope(strings.ToLower(strings.TrimSpace(s))) {
	case ScopeOwner, "":
		return ScopeOwner, nil
	case ScopePlatform:
		return ScopePlatform, nil
	}
	return "", fmt.Errorf("unsupported conflict scope %q", s)
}

// ConflictPolicy configures conflict detection. A zero Window means two
// bookings collide only at the exact same instant.
type ConflictPolicy struct {
	Scope  ConflictScope
	Window time.Duration
}

func DefaultConflictPolicy() ConflictPolicy {
	return ConflictPolicy{Scope: ScopeOwner, Window: time.Minute}
}

func (p ConflictPolicy) probe(ownerID uuid.UUID, platform model.Platform, at time.Time, exclude *uuid.UUID) model.ConflictProbe {
	probe := model.ConflictProbe{
		Platform:    platform,
		ScheduledAt: at,
		Window:      p.Window,
		ExcludeID:   exclude,
	}
	if p.Scope != ScopePlatform {
		probe.OwnerID = ownerID
	}
	return probe
}

// lockKey names the advisory lock guarding one conflict scope.
func (p ConflictPolicy) lockKey(ownerID uuid.UUID, platform model.Platform) string {
	if p.Scope == ScopePlatform {
		return "schedule:" + string(platform)
	}
	return "schedule:" + ownerID.String() + ":" + string(platform)
}
