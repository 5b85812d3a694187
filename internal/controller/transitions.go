package controller

import (
	"errors"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/gosuda/cimut/internal/domain"
	"github.com/gosuda/cimut/internal/gateway"
)

// Operator-facing texts.
const (
	NoticeMissingFields      = "Missing Fields"
	NoticeLineVerified       = "Line Verified"
	NoticeVerificationFailed = "Verification Failed"
	NoticeNetworkError       = "Network Error"
	NoticeMutationApplied    = "Mutation Applied"
	NoticeMutationFailed     = "Mutation Failed"
	NoticeFaultFound         = "Fault Found"

	MissingVerifyFields = "Please fill in Agent ID, File Path, and Line Number"
	MissingMutateFields = "Please fill in all fields including New Content"
	MissingChatFields   = "Please fill in Agent ID and enter a query"

	MessageVerified      = "Successfully retrieved line content"
	MessageVerifyFailed  = "Failed to verify line content"
	MessageMutated       = "Successfully applied code mutation"
	MessageMutateFailed  = "Failed to apply code mutation"
	MessageNetworkError  = "Failed to connect to CIMut API"
	MessageFaultFound    = "Mutation suggestion generated successfully"
	ReplyNoSuitableFault = "Unable to find a suitable fault for your query. Try rephrasing your question."
	ReplyConnectionError = "Error connecting to the API. Please try again."
)

// Field names reported in a ValidationError.
const (
	FieldAgentID            = "agent_id"
	FieldTargetFile         = "target_file"
	FieldTargetLine         = "target_line"
	FieldReplacementContent = "replacement_content"
	FieldQuery              = "query"
)

// ParseTargetLine converts the typed line number into a positive integer.
func ParseTargetLine(raw string) (int, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}

// ValidateVerify checks the verify preconditions and returns the parsed line.
func ValidateVerify(agentID, targetFile, targetLine string) (int, error) {
	var missing []string
	if strings.TrimSpace(agentID) == "" {
		missing = append(missing, FieldAgentID)
	}
	if strings.TrimSpace(targetFile) == "" {
		missing = append(missing, FieldTargetFile)
	}
	line, ok := ParseTargetLine(targetLine)
	if !ok {
		missing = append(missing, FieldTargetLine)
	}
	if len(missing) > 0 {
		return 0, &domain.ValidationError{Fields: missing}
	}
	return line, nil
}

// ValidateMutate checks the mutate preconditions. The replacement is only
// required to be non-empty; whitespace is a legitimate line body.
func ValidateMutate(agentID, targetFile, targetLine, replacement string) (int, error) {
	line, err := ValidateVerify(agentID, targetFile, targetLine)
	if replacement != "" {
		return line, err
	}
	var ve *domain.ValidationError
	if errors.As(err, &ve) {
		return 0, &domain.ValidationError{Fields: append(ve.Fields, FieldReplacementContent)}
	}
	return 0, &domain.ValidationError{Fields: []string{FieldReplacementContent}}
}

// ValidateChat checks the find-fault-target preconditions.
func ValidateChat(agentID, query string) error {
	var missing []string
	if strings.TrimSpace(agentID) == "" {
		missing = append(missing, FieldAgentID)
	}
	if strings.TrimSpace(query) == "" {
		missing = append(missing, FieldQuery)
	}
	if len(missing) > 0 {
		return &domain.ValidationError{Fields: missing}
	}
	return nil
}

// RejectMissingFields records the notice shown when an operation is refused
// before any call is made. Status machines are untouched.
func RejectMissingFields(s domain.Session, description string) domain.Session {
	s.LastNotice = destructive(NoticeMissingFields, description)
	return s
}

// StartVerify enters the loading state and drops the previous line content.
func StartVerify(s domain.Session) domain.Session {
	s.VerifyState = domain.StatusLoading
	s.VerifiedContent = ""
	return s
}

// CompleteVerify applies a verify outcome. The returned error is nil only
// when the line was retrieved; otherwise it is a *domain.ServerError or the
// transport error passed in.
func CompleteVerify(s domain.Session, resp *gateway.VerifyResponse, err error) (domain.Session, error) {
	s.VerifiedContent = ""

	if err == nil && resp != nil && resp.Success && resp.Data != nil {
		s.VerifiedContent = resp.Data.LineContent
		s.VerifyState = domain.StatusSuccess
		s.VerifyMessage = MessageVerified
		s.LastNotice = info(NoticeLineVerified, MessageVerified)
		return s, nil
	}

	s.VerifyState = domain.StatusError
	if isTransport(err) {
		s.VerifyMessage = MessageNetworkError
		s.LastNotice = destructive(NoticeNetworkError, MessageNetworkError)
		return s, err
	}

	var detail string
	if resp != nil {
		detail = resp.Error
	}
	msg := serverMessage(detail, err, MessageVerifyFailed)
	s.VerifyMessage = msg
	s.LastNotice = destructive(NoticeVerificationFailed, msg)
	if err == nil {
		err = &domain.ServerError{Op: gateway.OpVerify, Message: detail}
	}
	return s, err
}

// StartMutate enters the loading state. The previous outcome message stays
// until the new one arrives.
func StartMutate(s domain.Session) domain.Session {
	s.MutateState = domain.StatusLoading
	return s
}

// CompleteMutate applies a mutate outcome with the same error contract as
// CompleteVerify. verifyState and verifiedContent are left alone.
func CompleteMutate(s domain.Session, resp *gateway.MutateResponse, err error) (domain.Session, error) {
	if err == nil && resp != nil && resp.Success {
		msg := resp.Message
		if msg == "" {
			msg = MessageMutated
		}
		s.MutateState = domain.StatusSuccess
		s.MutateMessage = msg
		s.LastNotice = info(NoticeMutationApplied, msg)
		return s, nil
	}

	s.MutateState = domain.StatusError
	if isTransport(err) {
		s.MutateMessage = MessageNetworkError
		s.LastNotice = destructive(NoticeNetworkError, MessageNetworkError)
		return s, err
	}

	var detail string
	if resp != nil {
		detail = resp.Error
	}
	msg := serverMessage(detail, err, MessageMutateFailed)
	s.MutateMessage = msg
	s.LastNotice = destructive(NoticeMutationFailed, msg)
	if err == nil {
		err = &domain.ServerError{Op: gateway.OpMutate, Message: detail}
	}
	return s, err
}

// StartFind appends the operator's query to the transcript, clears the draft
// and marks the chat busy.
func StartFind(s domain.Session, query string, at time.Time) domain.Session {
	s.Transcript = append(slices.Clip(s.Transcript), domain.ChatMessage{
		Role:      domain.RoleUser,
		Text:      query,
		CreatedAt: at,
	})
	s.ChatQuery = ""
	s.ChatLoading = true
	return s
}

// CompleteFind appends the assistant's reply. A complete suggestion also
// overwrites the manual coordinates and replacement, whatever the operator
// typed meanwhile.
func CompleteFind(s domain.Session, resp *gateway.FaultTargetResponse, err error, at time.Time) (domain.Session, error) {
	s.ChatLoading = false

	reply := func(text string) {
		s.Transcript = append(slices.Clip(s.Transcript), domain.ChatMessage{
			Role:      domain.RoleAssistant,
			Text:      text,
			CreatedAt: at,
		})
	}

	switch {
	case err == nil && resp.Complete():
		reply(FormatFaultTarget(resp))
		s.TargetFile = resp.MutationInfo.FilePath
		s.TargetLine = strconv.Itoa(resp.MutationInfo.LineNumber)
		s.ReplacementContent = resp.MutationInfo.NewContent
		s.LastNotice = info(NoticeFaultFound, MessageFaultFound)
		return s, nil

	case isTransport(err):
		reply(ReplyConnectionError)
		s.LastNotice = destructive(NoticeNetworkError, MessageNetworkError)
		return s, err

	default:
		reply(ReplyNoSuitableFault)
		s.LastNotice = nil
		if err == nil {
			err = &domain.ServerError{Op: gateway.OpFindFaultTarget}
		}
		return s, err
	}
}

func isTransport(err error) bool {
	return err != nil && !errors.Is(err, domain.ErrServerReported)
}

func serverMessage(detail string, err error, fallback string) string {
	if detail != "" {
		return detail
	}
	var se *domain.ServerError
	if errors.As(err, &se) && se.Message != "" {
		return se.Message
	}
	return fallback
}

func info(title, description string) *domain.Notice {
	return &domain.Notice{Title: title, Description: description, Variant: domain.NoticeDefault}
}

func destructive(title, description string) *domain.Notice {
	return &domain.Notice{Title: title, Description: description, Variant: domain.NoticeDestructive}
}
