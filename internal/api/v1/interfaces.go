package v1

import (
	"github.com/google/uuid"

	"github.com/gosuda/cimut/internal/controller"
)

// SessionStore abstracts session lifecycle for handler testing.
// *controller.Registry satisfies this interface.
type SessionStore interface {
	Create() *controller.Controller
	Get(id uuid.UUID) (*controller.Controller, error)
	Delete(id uuid.UUID) error
}
