package v1_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/danielgtaylor/huma/v2/humatest"

	v1 "github.com/gosuda/cimut/internal/api/v1"
	"github.com/gosuda/cimut/internal/controller"
	"github.com/gosuda/cimut/internal/gateway"
)

// ---------------------------------------------------------------------------
// Mock Gateway
// ---------------------------------------------------------------------------

type mockGateway struct {
	verifyFunc func(ctx context.Context, agentID string, req gateway.VerifyRequest) (*gateway.VerifyResponse, error)
	mutateFunc func(ctx context.Context, agentID string, req gateway.MutateRequest) (*gateway.MutateResponse, error)
	findFunc   func(ctx context.Context, agentID string, req gateway.FindRequest) (*gateway.FaultTargetResponse, error)

	calls atomic.Int32
}

func (m *mockGateway) Verify(ctx context.Context, agentID string, req gateway.VerifyRequest) (*gateway.VerifyResponse, error) {
	m.calls.Add(1)
	return m.verifyFunc(ctx, agentID, req)
}

func (m *mockGateway) Mutate(ctx context.Context, agentID string, req gateway.MutateRequest) (*gateway.MutateResponse, error) {
	m.calls.Add(1)
	return m.mutateFunc(ctx, agentID, req)
}

func (m *mockGateway) FindFaultTarget(ctx context.Context, agentID string, req gateway.FindRequest) (*gateway.FaultTargetResponse, error) {
	m.calls.Add(1)
	return m.findFunc(ctx, agentID, req)
}

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

func newSessionTestAPI(t *testing.T, gw *mockGateway) (humatest.TestAPI, *controller.Registry) {
	t.Helper()

	_, api := humatest.New(t)
	reg := controller.NewRegistry(gw, nil, time.Hour, nil)
	v1.RegisterSessionRoutes(api, reg)
	return api, reg
}

func verifyOK(content string) func(context.Context, string, gateway.VerifyRequest) (*gateway.VerifyResponse, error) {
	return func(_ context.Context, _ string, req gateway.VerifyRequest) (*gateway.VerifyResponse, error) {
		return &gateway.VerifyResponse{
			Success: true,
			Data: &gateway.VerifyData{
				FilePath:    req.FilePath,
				LineContent: content,
				LineNumber:  req.LineNumber,
				TotalLines:  900,
			},
		}, nil
	}
}

func faultTarget(line int) *gateway.FaultTargetResponse {
	return &gateway.FaultTargetResponse{
		TargetFile:     "/opt/app/vm.py",
		TargetFunction: "create_vm",
		MutationSuggestion: &gateway.MutationSuggestion{
			Modifications: []gateway.Modification{
				{LineNumber: line, NewContent: "raise RuntimeError('boom')", Reason: "aborts VM creation"},
			},
		},
		MutationInfo: &gateway.MutationInfo{
			FilePath:   "/opt/app/vm.py",
			LineNumber: line,
			OldContent: "vm = hypervisor.create(flavor)",
			NewContent: "raise RuntimeError('boom')",
			BackupPath: "/var/backups/vm.py.bak",
		},
	}
}
