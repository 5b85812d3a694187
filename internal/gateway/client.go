package gateway

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/gosuda/cimut/internal/domain"
	"github.com/gosuda/cimut/internal/metrics"
)

// maxResponseBytes caps how much of a gateway reply is read.
const maxResponseBytes = 4 << 20

// Client calls the agent gateway over HTTP. It never retries.
type Client struct {
	baseURL    string
	httpClient *http.Client
	metrics    *metrics.Metrics
}

// NewClient creates a Client for the gateway at baseURL. A zero timeout
// lets a hung request wait forever, which is the panel's documented behaviour.
func NewClient(baseURL string, timeout time.Duration, m *metrics.Metrics) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		metrics: m,
	}
}

// Verify reads one line of a file on the agent's host.
func (c *Client) Verify(ctx context.Context, agentID string, req VerifyRequest) (*VerifyResponse, error) {
	body, err := EncodeVerifyRequest(req)
	if err != nil {
		return nil, fmt.Errorf("gateway.Client.Verify: %w", err)
	}

	var resp *VerifyResponse
	err = c.call(ctx, OpVerify, agentID, "verify", body, func(raw []byte) error {
		var decodeErr error
		resp, decodeErr = DecodeVerifyResponse(raw)
		return decodeErr
	})
	if err != nil {
		return nil, fmt.Errorf("gateway.Client.Verify: %w", err)
	}
	return resp, nil
}

// Mutate overwrites one line of a file on the agent's host.
func (c *Client) Mutate(ctx context.Context, agentID string, req MutateRequest) (*MutateResponse, error) {
	body, err := EncodeMutateRequest(req)
	if err != nil {
		return nil, fmt.Errorf("gateway.Client.Mutate: %w", err)
	}

	var resp *MutateResponse
	err = c.call(ctx, OpMutate, agentID, "fault", body, func(raw []byte) error {
		var decodeErr error
		resp, decodeErr = DecodeMutateResponse(raw)
		return decodeErr
	})
	if err != nil {
		return nil, fmt.Errorf("gateway.Client.Mutate: %w", err)
	}
	return resp, nil
}

// FindFaultTarget asks the agent's assistant for a mutation target matching
// a natural-language description. Incomplete suggestions come back as
// *domain.ServerError.
func (c *Client) FindFaultTarget(ctx context.Context, agentID string, req FindRequest) (*FaultTargetResponse, error) {
	body, err := EncodeFindRequest(req)
	if err != nil {
		return nil, fmt.Errorf("gateway.Client.FindFaultTarget: %w", err)
	}

	var resp *FaultTargetResponse
	err = c.call(ctx, OpFindFaultTarget, agentID, "find-fault-target", body, func(raw []byte) error {
		var decodeErr error
		resp, decodeErr = DecodeFaultTargetResponse(raw)
		return decodeErr
	})
	if err != nil {
		return nil, fmt.Errorf("gateway.Client.FindFaultTarget: %w", err)
	}
	return resp, nil
}

func (c *Client) endpoint(agentID, action string) string {
	return c.baseURL + "/api/agents/" + url.PathEscape(agentID) + "/" + action
}

// call performs one POST and classifies the outcome:
//   - network errors, unreadable or non-JSON bodies, and non-2xx replies
//     without an {error} detail are *domain.TransportError;
//   - non-2xx replies with an {error} detail and 2xx JSON replies missing
//     required fields are *domain.ServerError.
func (c *Client) call(ctx context.Context, op, agentID, action string, body []byte, decodeFn func([]byte) error) (err error) {
	start := time.Now()
	defer func() {
		c.metrics.ObserveGatewayCall(op, outcomeOf(err), time.Since(start))
	}()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(agentID, action), bytes.NewReader(body))
	if err != nil {
		return &domain.TransportError{Op: op, Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	res, err := c.httpClient.Do(httpReq)
	if err != nil {
		return &domain.TransportError{Op: op, Err: err}
	}
	defer func() { _ = res.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(res.Body, maxResponseBytes))
	if err != nil {
		return &domain.TransportError{Op: op, Err: fmt.Errorf("read body: %w", err)}
	}

	if res.StatusCode < 200 || res.StatusCode > 299 {
		if msg, ok := ErrorDetail(raw); ok {
			return &domain.ServerError{Op: op, Status: res.StatusCode, Message: msg}
		}
		return &domain.TransportError{Op: op, Err: fmt.Errorf("unexpected status %d", res.StatusCode)}
	}

	if decodeErr := decodeFn(raw); decodeErr != nil {
		var de *DecodeError
		if errors.As(decodeErr, &de) && de.Kind == DecodeShape {
			log.Debug().Err(decodeErr).Str("op", op).Str("agent_id", agentID).Msg("gateway: reply missing required fields")
			msg, _ := ErrorDetail(raw)
			return &domain.ServerError{Op: op, Status: res.StatusCode, Message: msg}
		}
		return &domain.TransportError{Op: op, Err: decodeErr}
	}

	return nil
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeOK
	case errors.Is(err, domain.ErrServerReported):
		return metrics.OutcomeServerError
	default:
		return metrics.OutcomeTransportError
	}
}
