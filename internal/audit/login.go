package audit

import (
	"context"
	"strconv"

	"github.com/meshgate/meshgate/internal/auth"
)

// LoginTrail adapts the Recorder to the auth package's login hook.
type LoginTrail struct {
	rec *Recorder
}

// NewLoginTrail wraps a Recorder for login events.
func NewLoginTrail(rec *Recorder) LoginTrail {
	return LoginTrail{rec: rec}
}

// RecordLogin appends a USER_LOGIN entry.
func (l LoginTrail) RecordLogin(ctx context.Context, event auth.LoginEvent) {
	_ = l.rec.Record(ctx, Entry{
		Action:       ActionUserLogin,
		ActorID:      event.UserID,
		ActorEmail:   event.Email,
		Origin:       event.Origin,
		ResourceType: ResourceUser,
		ResourceID:   strconv.FormatInt(event.UserID, 10),
		Meta:         map[string]any{"degraded": event.Degraded},
	})
}

var _ auth.LoginRecorder = LoginTrail{}
