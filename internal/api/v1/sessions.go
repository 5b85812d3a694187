package v1

import (
	"context"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/google/uuid"

	"github.com/gosuda/cimut/internal/controller"
	"github.com/gosuda/cimut/internal/domain"
)

type SessionIDInput struct {
	ID uuid.UUID `path:"id" doc:"Session ID"`
}

type SessionOutput struct {
	Body controller.Snapshot
}

type UpdateFieldsInput struct {
	ID   uuid.UUID `path:"id" doc:"Session ID"`
	Body controller.FieldUpdate
}

// TargetOverrides replaces the session's form fields for one attempt.
// Omitted fields use the session's current values.
type TargetOverrides struct {
	AgentID            *string `json:"agent_id,omitempty" doc:"Agent identifier"`
	TargetFile         *string `json:"target_file,omitempty" doc:"Absolute path of the file on the agent host"`
	TargetLine         *string `json:"target_line,omitempty" doc:"1-based line number"`
	ReplacementContent *string `json:"replacement_content,omitempty" doc:"New line content (mutate only)"`
}

type OperationInput struct {
	ID   uuid.UUID        `path:"id" doc:"Session ID"`
	Body *TargetOverrides `required:"false"`
}

type ChatInput struct {
	ID   uuid.UUID `path:"id" doc:"Session ID"`
	Body *struct {
		Query *string `json:"query,omitempty" doc:"Natural-language description of the desired failure; defaults to the session's draft"`
	} `required:"false"`
}

// OperationResult is the session after an attempt, plus the notice the
// attempt produced.
type OperationResult struct {
	Session  domain.Session  `json:"session"`
	Triggers domain.Triggers `json:"triggers"`
	Notice   *domain.Notice  `json:"notice,omitempty"`
}

type OperationOutput struct {
	Body OperationResult
}

func RegisterSessionRoutes(api huma.API, store SessionStore) {
	huma.Register(api, huma.Operation{
		OperationID: "create-session",
		Method:      http.MethodPost,
		Path:        "/sessions",
		Summary:     "Open a panel session",
		Tags:        []string{"Sessions"},
	}, func(_ context.Context, _ *struct{}) (*SessionOutput, error) {
		ctrl := store.Create()
		return &SessionOutput{Body: ctrl.Snapshot()}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-session",
		Method:      http.MethodGet,
		Path:        "/sessions/{id}",
		Summary:     "Get a session snapshot",
		Tags:        []string{"Sessions"},
	}, func(_ context.Context, input *SessionIDInput) (*SessionOutput, error) {
		ctrl, err := lookup(store, input.ID)
		if err != nil {
			return nil, err
		}
		return &SessionOutput{Body: ctrl.Snapshot()}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-session",
		Method:      http.MethodDelete,
		Path:        "/sessions/{id}",
		Summary:     "Close a panel session",
		Tags:        []string{"Sessions"},
	}, func(_ context.Context, input *SessionIDInput) (*struct{}, error) {
		if err := store.Delete(input.ID); err != nil {
			if errors.Is(err, controller.ErrSessionNotFound) {
				return nil, huma.Error404NotFound("session not found")
			}
			return nil, huma.Error500InternalServerError("failed to delete session", err)
		}
		return nil, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-session-fields",
		Method:      http.MethodPatch,
		Path:        "/sessions/{id}/fields",
		Summary:     "Edit form fields",
		Tags:        []string{"Sessions"},
	}, func(ctx context.Context, input *UpdateFieldsInput) (*SessionOutput, error) {
		ctrl, err := lookup(store, input.ID)
		if err != nil {
			return nil, err
		}
		return &SessionOutput{Body: ctrl.UpdateFields(ctx, input.Body)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "verify-line",
		Method:      http.MethodPost,
		Path:        "/sessions/{id}/verify",
		Summary:     "Fetch the current content of the target line",
		Tags:        []string{"Operations"},
	}, func(ctx context.Context, input *OperationInput) (*OperationOutput, error) {
		ctrl, err := lookup(store, input.ID)
		if err != nil {
			return nil, err
		}

		snap := ctrl.Snapshot()
		if !snap.Triggers.CanVerify {
			return nil, huma.Error409Conflict("verification already in progress")
		}
		agentID, file, line, _ := resolveTarget(snap.Session, input.Body)

		// The gateway call outlives a dropped client connection.
		result, err := ctrl.VerifyLine(context.WithoutCancel(ctx), agentID, file, line)
		return operationOutput(result, err)
	})

	huma.Register(api, huma.Operation{
		OperationID: "mutate-line",
		Method:      http.MethodPost,
		Path:        "/sessions/{id}/mutate",
		Summary:     "Overwrite the target line",
		Description: "Only allowed after a successful verify.",
		Tags:        []string{"Operations"},
	}, func(ctx context.Context, input *OperationInput) (*OperationOutput, error) {
		ctrl, err := lookup(store, input.ID)
		if err != nil {
			return nil, err
		}

		snap := ctrl.Snapshot()
		if !snap.Triggers.CanMutate {
			if snap.Session.MutateState == domain.StatusLoading {
				return nil, huma.Error409Conflict("mutation already in progress")
			}
			return nil, huma.Error409Conflict("verify the target line before mutating")
		}
		agentID, file, line, replacement := resolveTarget(snap.Session, input.Body)

		result, err := ctrl.MutateLine(context.WithoutCancel(ctx), agentID, file, line, replacement)
		return operationOutput(result, err)
	})

	huma.Register(api, huma.Operation{
		OperationID: "find-fault-target",
		Method:      http.MethodPost,
		Path:        "/sessions/{id}/chat",
		Summary:     "Ask the assistant for a mutation target",
		Tags:        []string{"Operations"},
	}, func(ctx context.Context, input *ChatInput) (*OperationOutput, error) {
		ctrl, err := lookup(store, input.ID)
		if err != nil {
			return nil, err
		}

		snap := ctrl.Snapshot()
		if snap.Session.ChatLoading {
			return nil, huma.Error409Conflict("a query is already in progress")
		}
		query := snap.Session.ChatQuery
		if input.Body != nil && input.Body.Query != nil {
			query = *input.Body.Query
		}

		result, err := ctrl.FindFaultTarget(context.WithoutCancel(ctx), snap.Session.AgentID, query)
		return operationOutput(result, err)
	})
}

func lookup(store SessionStore, id uuid.UUID) (*controller.Controller, error) {
	ctrl, err := store.Get(id)
	if err != nil {
		if errors.Is(err, controller.ErrSessionNotFound) {
			return nil, huma.Error404NotFound("session not found")
		}
		return nil, huma.Error500InternalServerError("failed to get session", err)
	}
	return ctrl, nil
}

func resolveTarget(s domain.Session, o *TargetOverrides) (agentID, file, line, replacement string) {
	agentID, file, line, replacement = s.AgentID, s.TargetFile, s.TargetLine, s.ReplacementContent
	if o == nil {
		return agentID, file, line, replacement
	}
	if o.AgentID != nil {
		agentID = *o.AgentID
	}
	if o.TargetFile != nil {
		file = *o.TargetFile
	}
	if o.TargetLine != nil {
		line = *o.TargetLine
	}
	if o.ReplacementContent != nil {
		replacement = *o.ReplacementContent
	}
	return agentID, file, line, replacement
}

// operationOutput maps an attempt's outcome. Failures the gateway reported
// or failed to deliver are recorded session state, not HTTP errors.
func operationOutput(snap controller.Snapshot, err error) (*OperationOutput, error) {
	switch {
	case err == nil,
		errors.Is(err, domain.ErrServerReported),
		errors.Is(err, domain.ErrTransport):
		return &OperationOutput{Body: OperationResult{
			Session:  snap.Session,
			Triggers: snap.Triggers,
			Notice:   snap.Session.LastNotice,
		}}, nil
	case errors.Is(err, domain.ErrValidation):
		msg := "missing required fields"
		if snap.Session.LastNotice != nil {
			msg = snap.Session.LastNotice.Description
		}
		return nil, huma.Error422UnprocessableEntity(msg, err)
	case errors.Is(err, controller.ErrInFlight):
		return nil, huma.Error409Conflict("operation already in progress")
	default:
		return nil, huma.Error500InternalServerError("operation failed", err)
	}
}
