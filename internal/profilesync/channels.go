// Package profilesync is the companion channel between the watch and the
// phone app, carried over Redis pub/sub. Profile changes come in; alerts and
// recorded gels go out.
package profilesync

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lowaak/nrg-watch/internal/tracker"
)

var ErrEmptyUpdate = errors.New("profile update carries no fields")

func profileChannel(deviceID string) string {
	return "nrg:" + deviceID + ":profile"
}

func eventsChannel(deviceID string) string {
	return "nrg:" + deviceID + ":events"
}

type profileMessage struct {
	GelCalorieThresholdKcal *int     `json:"gel_calorie_threshold_kcal"`
	BodyMassKg              *float64 `json:"body_mass_kg"`
}

// DecodeProfileUpdate parses a profile payload. Either field may be absent,
// but not both.
func DecodeProfileUpdate(payload []byte) (tracker.ProfileUpdate, error) {
	var msg profileMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return tracker.ProfileUpdate{}, fmt.Errorf("decode profile update: %w", err)
	}
	update := tracker.ProfileUpdate{
		GelCalorieThresholdKcal: msg.GelCalorieThresholdKcal,
		BodyMassKg:              msg.BodyMassKg,
	}
	if update.IsEmpty() {
		return tracker.ProfileUpdate{}, ErrEmptyUpdate
	}
	return update, nil
}
