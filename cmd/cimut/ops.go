package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/gosuda/cimut/internal/config"
	"github.com/gosuda/cimut/internal/controller"
	"github.com/gosuda/cimut/internal/domain"
	"github.com/gosuda/cimut/internal/gateway"
)

// errNothingToMutate is returned when the verified line came back empty.
var errNothingToMutate = errors.New("verified line is empty; refusing to mutate") //nolint:gochecknoglobals // sentinel error

// opResult is what the one-shot commands print.
type opResult struct {
	Notice          *domain.Notice `json:"notice,omitempty"`
	VerifyState     domain.Status  `json:"verify_state"`
	MutateState     domain.Status  `json:"mutate_state"`
	VerifiedContent string         `json:"verified_content,omitempty"`
	Target          *target        `json:"target,omitempty"`
	Reply           string         `json:"reply,omitempty"`
}

type target struct {
	AgentID            string `json:"agent_id"`
	TargetFile         string `json:"target_file"`
	TargetLine         string `json:"target_line"`
	ReplacementContent string `json:"replacement_content"`
}

type targetFlags struct {
	agentID string
	file    string
	line    int
}

func (f *targetFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.agentID, "agent", "a", "", "Agent ID")
	cmd.Flags().StringVarP(&f.file, "file", "f", "", "Absolute path of the target file on the agent")
	cmd.Flags().IntVarP(&f.line, "line", "l", 0, "1-based target line number")
}

func (f *targetFlags) lineString() string {
	if f.line == 0 {
		return ""
	}
	return strconv.Itoa(f.line)
}

// newOneShot builds a controller that is not registered anywhere and
// publishes nowhere.
func newOneShot() (*controller.Controller, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	client := gateway.NewClient(cfg.Gateway.URL, cfg.Gateway.Timeout, nil)
	return controller.New(uuid.New(), client, nil, nil), nil
}

func verifyCmd() *cobra.Command {
	var flags targetFlags

	cmd := &cobra.Command{
		Use:     "verify",
		Short:   "Read one line of a file on an agent",
		Example: `  cimut verify --agent agent-7 --file /opt/app/server.py --line 42`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctrl, err := newOneShot()
			if err != nil {
				return err
			}
			snap, opErr := ctrl.VerifyLine(cmd.Context(), flags.agentID, flags.file, flags.lineString())
			return report(cmd.OutOrStdout(), snap, opErr)
		},
	}
	flags.register(cmd)
	return cmd
}

func mutateCmd() *cobra.Command {
	var (
		flags   targetFlags
		content string
	)

	cmd := &cobra.Command{
		Use:   "mutate",
		Short: "Verify a line on an agent, then replace it",
		Long: `mutate verifies the target line first and only applies the replacement
when verification succeeds, as the panel does.`,
		Example: `  cimut mutate --agent agent-7 --file /opt/app/server.py --line 42 --content 'x = None'`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctrl, err := newOneShot()
			if err != nil {
				return err
			}
			return runMutate(cmd.Context(), cmd.OutOrStdout(), ctrl, flags, content)
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVarP(&content, "content", "c", "", "Replacement content for the target line")
	return cmd
}

func runMutate(ctx context.Context, w io.Writer, ctrl *controller.Controller, flags targetFlags, content string) error {
	// Missing inputs are reported by the mutate attempt itself, without
	// touching the gateway.
	if _, err := controller.ValidateMutate(flags.agentID, flags.file, flags.lineString(), content); err != nil {
		snap, opErr := ctrl.MutateLine(ctx, flags.agentID, flags.file, flags.lineString(), content)
		return report(w, snap, opErr)
	}

	snap, err := ctrl.VerifyLine(ctx, flags.agentID, flags.file, flags.lineString())
	if err != nil {
		return report(w, snap, err)
	}
	if !snap.Triggers.CanMutate {
		return report(w, snap, errNothingToMutate)
	}

	snap, err = ctrl.MutateLine(ctx, flags.agentID, flags.file, flags.lineString(), content)
	return report(w, snap, err)
}

func findCmd() *cobra.Command {
	var (
		agentID string
		query   string
	)

	cmd := &cobra.Command{
		Use:     "find [scenario]",
		Short:   "Ask the gateway to choose a fault target for a scenario",
		Example: `  cimut find --agent agent-7 "Make VM creation fail"`,
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				query = args[0]
			}
			ctrl, err := newOneShot()
			if err != nil {
				return err
			}
			snap, opErr := ctrl.FindFaultTarget(cmd.Context(), agentID, query)
			return report(cmd.OutOrStdout(), snap, opErr)
		},
	}
	cmd.Flags().StringVarP(&agentID, "agent", "a", "", "Agent ID")
	cmd.Flags().StringVarP(&query, "query", "q", "", "Scenario description (or pass it as the argument)")
	return cmd
}

// report prints the attempt's outcome as JSON and returns opErr so the
// process exits non-zero on any failure.
func report(w io.Writer, snap controller.Snapshot, opErr error) error {
	s := snap.Session
	res := opResult{
		Notice:          s.LastNotice,
		VerifyState:     s.VerifyState,
		MutateState:     s.MutateState,
		VerifiedContent: s.VerifiedContent,
	}
	if s.TargetFile != "" || s.AgentID != "" {
		res.Target = &target{
			AgentID:            s.AgentID,
			TargetFile:         s.TargetFile,
			TargetLine:         s.TargetLine,
			ReplacementContent: s.ReplacementContent,
		}
	}
	if n := len(s.Transcript); n > 0 && s.Transcript[n-1].Role == domain.RoleAssistant {
		res.Reply = s.Transcript[n-1].Text
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		return fmt.Errorf("write result: %w", err)
	}
	return opErr
}
