package room

import (
	"errors"
	"testing"

	"github.com/VidDazzleLLC/digicon-ai-systems-sub000/internal/db/models"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to models.RoomStatus
		want     bool
	}{
		{models.RoomActive, models.RoomExpired, true},
		{models.RoomActive, models.RoomClosedWon, true},
		{models.RoomActive, models.RoomClosedLost, true},
		{models.RoomActive, models.RoomRevoked, true},
		{models.RoomActive, models.RoomSuspended, true},

		{models.RoomSuspended, models.RoomActive, true},
		{models.RoomSuspended, models.RoomClosedWon, true},
		{models.RoomSuspended, models.RoomRevoked, true},
		{models.RoomSuspended, models.RoomExpired, false},

		{models.RoomExpired, models.RoomActive, true},
		{models.RoomExpired, models.RoomRevoked, true},
		{models.RoomExpired, models.RoomClosedWon, false},

		// Terminal states have no exits, including self-loops.
		{models.RoomClosedWon, models.RoomActive, false},
		{models.RoomClosedWon, models.RoomClosedWon, false},
		{models.RoomClosedLost, models.RoomActive, false},
		{models.RoomRevoked, models.RoomActive, false},
		{models.RoomRevoked, models.RoomRevoked, false},
	}

	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestTransition_TerminalStatesAreFinal(t *testing.T) {
	for _, terminal := range []models.RoomStatus{models.RoomClosedWon, models.RoomClosedLost, models.RoomRevoked} {
		room := &models.ConferenceRoom{Status: terminal}
		for _, target := range []models.RoomStatus{
			models.RoomActive, models.RoomExpired, models.RoomClosedWon,
			models.RoomClosedLost, models.RoomRevoked, models.RoomSuspended,
		} {
			err := transition(room, target)
			if !errors.Is(err, ErrInvalidTransition) {
				t.Errorf("transition(%s, %s): err = %v, want ErrInvalidTransition", terminal, target, err)
			}
			if room.Status != terminal {
				t.Fatalf("transition mutated status to %s despite failing", room.Status)
			}
		}
	}
}

func TestTransition_AppliesOnSuccess(t *testing.T) {
	room := &models.ConferenceRoom{Status: models.RoomActive}
	if err := transition(room, models.RoomSuspended); err != nil {
		t.Fatalf("transition: %v", err)
	}
	if room.Status != models.RoomSuspended {
		t.Errorf("status = %s, want SUSPENDED", room.Status)
	}
	if err := transition(room, models.RoomActive); err != nil {
		t.Fatalf("suspend round trip: %v", err)
	}
}
