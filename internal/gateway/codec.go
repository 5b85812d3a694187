package gateway

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/gosuda/cimut/internal/domain"
)

// DecodeKind separates bodies that are not JSON at all from JSON bodies
// that lack or mistype a required field.
type DecodeKind int

const (
	DecodeSyntax DecodeKind = iota
	DecodeShape
)

func (k DecodeKind) String() string {
	if k == DecodeShape {
		return "shape"
	}
	return "syntax"
}

// DecodeError is returned by the Decode functions.
type DecodeError struct {
	Op   string
	Kind DecodeKind
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("gateway: decode %s response (%s): %v", e.Op, e.Kind, e.Err)
}

func (e *DecodeError) Unwrap() []error { return []error{domain.ErrDecode, e.Err} }

func EncodeVerifyRequest(req VerifyRequest) ([]byte, error) {
	return encode(OpVerify, req)
}

func EncodeMutateRequest(req MutateRequest) ([]byte, error) {
	return encode(OpMutate, req)
}

func EncodeFindRequest(req FindRequest) ([]byte, error) {
	return encode(OpFindFaultTarget, req)
}

func encode(op string, v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("gateway: encode %s request: %w", op, err)
	}
	return b, nil
}

// DecodeVerifyResponse parses a verify reply. A reply with success=false is
// decoded normally; interpreting it is the caller's job.
func DecodeVerifyResponse(body []byte) (*VerifyResponse, error) {
	var resp VerifyResponse
	if err := decode(OpVerify, verifySchema, body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func DecodeMutateResponse(body []byte) (*MutateResponse, error) {
	var resp MutateResponse
	if err := decode(OpMutate, mutateSchema, body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// DecodeFaultTargetResponse parses a find-fault-target reply. Replies missing
// any field the panel consumes fail with a DecodeShape error.
func DecodeFaultTargetResponse(body []byte) (*FaultTargetResponse, error) {
	var resp FaultTargetResponse
	if err := decode(OpFindFaultTarget, faultTargetShape, body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ErrorDetail extracts a non-empty {error} string from a reply body.
func ErrorDetail(body []byte) (string, bool) {
	var v any
	if err := json.Unmarshal(body, &v); err != nil {
		return "", false
	}
	if err := errorDetailSchema.Validate(v); err != nil {
		return "", false
	}
	msg, _ := v.(map[string]any)["error"].(string)
	return msg, true
}

func decode(op string, schema *jsonschema.Schema, body []byte, out any) error {
	var v any
	if err := json.Unmarshal(body, &v); err != nil {
		return &DecodeError{Op: op, Kind: DecodeSyntax, Err: err}
	}
	if err := schema.Validate(v); err != nil {
		return &DecodeError{Op: op, Kind: DecodeShape, Err: err}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &DecodeError{Op: op, Kind: DecodeShape, Err: err}
	}
	return nil
}
