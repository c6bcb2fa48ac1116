package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"unsafe"

	capabilityDomain "github.com/allisson/capvault/internal/capability/domain"
	orchestratorDomain "github.com/allisson/capvault/internal/orchestrator/domain"
	"github.com/allisson/capvault/internal/secret"
)

const (
	maxResponseBytes = 1 << 20
	bearerPrefix     = "Bearer "
)

// HTTPInvoker POSTs the invocation document to http:// and https:// capabilities.
// 2xx answers succeed; 429 and 5xx are transient; any other status is a permanent
// rejection.
type HTTPInvoker struct {
	client    *http.Client
	userAgent string
}

// NewHTTPInvoker creates an HTTPInvoker. Attempt deadlines come from the context, so
// client should not carry a Timeout of its own.
func NewHTTPInvoker(client *http.Client, userAgent string) *HTTPInvoker {
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPInvoker{client: client, userAgent: userAgent}
}

// Invoke posts inv and returns the answer text.
func (h *HTTPInvoker) Invoke(
	ctx context.Context,
	d capabilityDomain.Descriptor,
	inv *orchestratorDomain.Invocation,
) (string, error) {
	body, err := encodeRequest(inv)
	if err != nil {
		return "", err
	}
	defer secret.Zero(body)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.InvocationTarget, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: %v", orchestratorDomain.ErrUnsupportedTarget, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/plain")
	req.Header.Set("User-Agent", h.userAgent)

	data, err := h.do(req)
	if err != nil {
		return "", fmt.Errorf("capability %s: %w", d.Name, err)
	}
	return decodeReply(data), nil
}

// Probe GETs the probe target. An explicit probe target must answer 2xx; when probing
// the invocation target any answer below 500 proves the endpoint is up.
func (h *HTTPInvoker) Probe(
	ctx context.Context,
	d capabilityDomain.Descriptor,
	inv *orchestratorDomain.Invocation,
) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.ProbeTarget(), nil)
	if err != nil {
		return fmt.Errorf("%w: %v", orchestratorDomain.ErrUnsupportedTarget, err)
	}
	req.Header.Set("User-Agent", h.userAgent)
	if inv != nil && inv.Credential != nil {
		var authorization []byte
		err := inv.Credential.Use(func(credential []byte) error {
			authorization = make([]byte, 0, len(bearerPrefix)+len(credential))
			authorization = append(authorization, bearerPrefix...)
			authorization = append(authorization, credential...)
			return nil
		})
		if err != nil {
			return err
		}
		// The header aliases authorization, which is wiped once the request is done.
		header := unsafe.String(unsafe.SliceData(authorization), len(authorization))
		req.Header["Authorization"] = []string{header}
		defer func() {
			delete(req.Header, "Authorization")
			secret.Zero(authorization)
		}()
	}

	_, err = h.do(req)
	if err != nil && d.HealthProbe.Target == "" && !orchestratorDomain.IsTransient(err) {
		return nil
	}
	return err
}

func (h *HTTPInvoker) do(req *http.Request) ([]byte, error) {
	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", orchestratorDomain.ErrTransientFailure, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %w", orchestratorDomain.ErrTransientFailure, err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return data, nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: status %d", orchestratorDomain.ErrTransientFailure, resp.StatusCode)
	default:
		return nil, fmt.Errorf("%w: status %d: %s",
			orchestratorDomain.ErrPermanentFailure, resp.StatusCode, tail(data, 512))
	}
}
