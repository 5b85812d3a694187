package ws

import (
	"time"

	"github.com/gosuda/cimut/internal/controller"
)

// EventSnapshot is the only event type sent today.
const EventSnapshot = "snapshot"

// SessionEvent is one message on a session's live stream. Clients keep the
// snapshot with the highest session version.
type SessionEvent struct {
	Type      string              `json:"type"`
	Snapshot  controller.Snapshot `json:"snapshot"`
	Timestamp time.Time           `json:"timestamp"`
}
