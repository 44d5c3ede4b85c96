// Package room implements the conference room lifecycle and the per-attempt
// admission decision. The lifecycle is a closed state machine with an explicit
// transition table; no code in this repository writes a room status except
// through a guarded transition, including the background sweeps.
package room

import (
	"errors"
	"fmt"

	"github.com/VidDazzleLLC/digicon-ai-systems-sub000/internal/db/models"
)

// ErrInvalidTransition is returned when an administrative action is attempted
// against a terminal or incompatible room state.
var ErrInvalidTransition = errors.New("room: invalid status transition")

// transitions is the complete set of legal status moves. CLOSED_WON,
// CLOSED_LOST, and REVOKED have no outgoing edges. EXPIRED and SUSPENDED are
// semi-terminal: only an administrative reactivation leaves them.
var transitions = map[models.RoomStatus][]models.RoomStatus{
	models.RoomActive: {
		models.RoomExpired,
		models.RoomClosedWon,
		models.RoomClosedLost,
		models.RoomRevoked,
		models.RoomSuspended,
	},
	models.RoomSuspended: {
		models.RoomActive,
		models.RoomClosedWon,
		models.RoomClosedLost,
		models.RoomRevoked,
	},
	models.RoomExpired: {
		models.RoomActive,
		models.RoomRevoked,
	},
	models.RoomClosedWon:  {},
	models.RoomClosedLost: {},
	models.RoomRevoked:    {},
}

// CanTransition reports whether moving from one status to another is legal.
func CanTransition(from, to models.RoomStatus) bool {
	for _, t := range transitions[from] {
		if t == to {
			return true
		}
	}
	return false
}

// transition applies a guarded status change in place.
func transition(room *models.ConferenceRoom, to models.RoomStatus) error {
	if !CanTransition(room.Status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, room.Status, to)
	}
	room.Status = to
	return nil
}
