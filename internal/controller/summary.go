package controller

import (
	"strconv"
	"strings"

	"github.com/gosuda/cimut/internal/gateway"
)

// FormatFaultTarget renders the assistant's chat reply for a complete
// suggestion. Only the first modification is shown.
func FormatFaultTarget(resp *gateway.FaultTargetResponse) string {
	mod, _ := resp.FirstModification()

	var b strings.Builder
	b.WriteString("**Target File:** " + resp.TargetFile + "\n")
	b.WriteString("**Function:** " + resp.TargetFunction + "\n\n")
	b.WriteString("**Suggested Mutation:**\n")
	b.WriteString("- Line " + strconv.Itoa(mod.LineNumber) + "\n")
	b.WriteString("- Reason: " + mod.Reason + "\n\n")
	b.WriteString("**Original Content:**\n`" + resp.MutationInfo.OldContent + "`\n\n")
	b.WriteString("**New Content:**\n`" + resp.MutationInfo.NewContent + "`\n\n")
	b.WriteString("**Backup created at:** " + resp.MutationInfo.BackupPath)
	return b.String()
}
