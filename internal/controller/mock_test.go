package controller_test

import (
	"context"
	"sync"
	"sync/atomic"

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
// Recording Publisher
// ---------------------------------------------------------------------------

type recordingPublisher struct {
	mu    sync.Mutex
	snaps []controller.Snapshot
}

func (p *recordingPublisher) PublishSnapshot(_ context.Context, snap controller.Snapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.snaps = append(p.snaps, snap)
}

func (p *recordingPublisher) all() []controller.Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]controller.Snapshot, len(p.snaps))
	copy(out, p.snaps)
	return out
}

// ---------------------------------------------------------------------------
// fixtures
// ---------------------------------------------------------------------------

func completeFaultTarget(line int) *gateway.FaultTargetResponse {
	return &gateway.FaultTargetResponse{
		TargetFile:     "/opt/app/vm.py",
		TargetFunction: "create_vm",
		MutationSuggestion: &gateway.MutationSuggestion{
			Modifications: []gateway.Modification{
				{LineNumber: line, NewContent: "raise RuntimeError('boom')", Reason: "aborts VM creation"},
				{LineNumber: line + 5, NewContent: "pass", Reason: "second suggestion"},
			},
		},
		MutationInfo: &gateway.MutationInfo{
			FilePath:   "/opt/app/vm.py",
			LineNumber: line,
			OldContent: "vm = hypervisor.create(flavor)",
			NewContent: "raise RuntimeError('boom')",
			BackupPath: "/var/backups/vm.py.1714557600",
			Timestamp:  "2024-05-01T10:00:00Z",
		},
		LLMAnalysis: "create_vm is the single entry point for VM creation",
	}
}

func ptr[T any](v T) *T { return &v }
