// Package gateway talks to the remote fault-injection agent gateway:
// a pure JSON codec for its three operations and an HTTP client on top.
package gateway

// Operation names, used in errors, logs and metrics.
const (
	OpVerify          = "verify"
	OpMutate          = "mutate"
	OpFindFaultTarget = "find-fault-target"
)

type VerifyRequest struct {
	FilePath   string `json:"file_path"`
	LineNumber int    `json:"line_number"`
}

type VerifyData struct {
	FilePath    string `json:"file_path"`
	LineContent string `json:"line_content"`
	LineNumber  int    `json:"line_number"`
	TotalLines  int    `json:"total_lines"`
}

type VerifyResponse struct {
	Success bool        `json:"success"`
	Data    *VerifyData `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

type MutateRequest struct {
	FilePath   string `json:"file_path"`
	LineNumber int    `json:"line_number"`
	NewContent string `json:"new_content"`
}

type MutateResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

type FindRequest struct {
	Query string `json:"query"`
}

// Modification is one line change proposed by the assistant.
type Modification struct {
	LineNumber int    `json:"line_number"`
	NewContent string `json:"new_content"`
	Reason     string `json:"reason"`
}

type MutationSuggestion struct {
	Modifications []Modification `json:"modifications"`
}

// MutationInfo describes the mutation the agent prepared, including the
// backup it took of the original file.
type MutationInfo struct {
	FilePath   string `json:"file_path"`
	LineNumber int    `json:"line_number"`
	OldContent string `json:"old_content"`
	NewContent string `json:"new_content"`
	BackupPath string `json:"backup_path"`
	Timestamp  string `json:"timestamp"`
}

type FaultTargetResponse struct {
	TargetFile         string              `json:"target_file"`
	TargetFunction     string              `json:"target_function"`
	MutationSuggestion *MutationSuggestion `json:"mutation_suggestion,omitempty"`
	MutationInfo       *MutationInfo       `json:"mutation_info,omitempty"`
	LLMAnalysis        string              `json:"llm_analysis"`
}

// FirstModification returns the first suggested modification, which is the
// only one surfaced to the operator.
func (r *FaultTargetResponse) FirstModification() (Modification, bool) {
	if r == nil || r.MutationSuggestion == nil || len(r.MutationSuggestion.Modifications) == 0 {
		return Modification{}, false
	}
	return r.MutationSuggestion.Modifications[0], true
}

// Complete reports whether every field the panel consumes is usable.
// DecodeFaultTargetResponse only returns complete responses; this guard is
// for values built elsewhere.
func (r *FaultTargetResponse) Complete() bool {
	if r == nil || r.TargetFile == "" || r.MutationInfo == nil {
		return false
	}
	if _, ok := r.FirstModification(); !ok {
		return false
	}
	return r.MutationInfo.FilePath != "" && r.MutationInfo.LineNumber > 0
}
