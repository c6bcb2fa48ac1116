// Package service implements the capability invokers: subprocess workers (exec://),
// HTTP skills (http://, https://) and in-process builtins (builtin:).
package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	capabilityDomain "github.com/allisson/capvault/internal/capability/domain"
	orchestratorDomain "github.com/allisson/capvault/internal/orchestrator/domain"
)

// Invoker runs capability attempts over one transport.
type Invoker interface {
	// Invoke runs one attempt and returns the capability's answer text.
	Invoke(ctx context.Context, d capabilityDomain.Descriptor, inv *orchestratorDomain.Invocation) (string, error)
	// Probe checks that the capability is reachable.
	Probe(ctx context.Context, d capabilityDomain.Descriptor, inv *orchestratorDomain.Invocation) error
}

// request is the document a capability receives: JSON on a worker's stdin, or the body
// of an HTTP POST.
type request struct {
	Kind       capabilityDomain.Kind `json:"kind"`
	Capability string                `json:"capability"`
	Message    string                `json:"message"`
	Args       string                `json:"args"`
	Context    map[string]string     `json:"context"`
}

// credentialField is spliced into the encoded request, so the credential never
// exists as a Go string.
const credentialField = `,"credential":"`

// reply is the structured answer. Capabilities may also answer with plain text.
type reply struct {
	Text *string `json:"text"`
}

// encodeRequest renders inv as JSON. The caller must zero the returned slice once the
// capability has read it.
func encodeRequest(inv *orchestratorDomain.Invocation) ([]byte, error) {
	req := request{
		Kind:       inv.Kind,
		Capability: inv.Capability,
		Message:    inv.Payload.Message,
		Args:       inv.Payload.Args,
		Context:    inv.Payload.Context,
	}
	if req.Context == nil {
		req.Context = map[string]string{}
	}
	doc, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode invocation: %w", err)
	}
	if inv.Credential == nil {
		return doc, nil
	}

	var body []byte
	err = inv.Credential.Use(func(credential []byte) error {
		body = appendCredential(doc, credential)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode invocation: %w", err)
	}
	return body, nil
}

// appendCredential returns a copy of doc, a JSON object, with a "credential" member
// holding credential as a JSON string. The result is sized up front so append never
// reallocates and leaves a stray copy behind.
func appendCredential(doc, credential []byte) []byte {
	// Worst case every byte becomes a six byte \u00XX escape.
	size := len(doc) + len(credentialField) + 6*len(credential) + 2
	body := make([]byte, 0, size)
	body = append(body, doc[:len(doc)-1]...)
	body = append(body, credentialField...)
	body = appendJSONEscaped(body, credential)
	return append(body, '"', '}')
}

// appendJSONEscaped escapes quotes, backslashes and control characters. Other bytes,
// including non-ASCII UTF-8, are copied as they are.
func appendJSONEscaped(dst, src []byte) []byte {
	const hex = "0123456789abcdef"
	for _, c := range src {
		switch {
		case c == '"' || c == '\\':
			dst = append(dst, '\\', c)
		case c < 0x20:
			dst = append(dst, '\\', 'u', '0', '0', hex[c>>4], hex[c&0xf])
		default:
			dst = append(dst, c)
		}
	}
	return dst
}

// decodeReply returns the "text" field of a JSON answer, or the trimmed output itself.
func decodeReply(out []byte) string {
	trimmed := bytes.TrimSpace(out)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var r reply
		if err := json.Unmarshal(trimmed, &r); err == nil && r.Text != nil {
			return *r.Text
		}
	}
	return string(trimmed)
}

func schemeOf(target string) string {
	u, err := url.Parse(target)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Scheme)
}

// tail returns at most the last n bytes of b, for error messages.
func tail(b []byte, n int) string {
	b = bytes.TrimSpace(b)
	if len(b) > n {
		b = b[len(b)-n:]
	}
	return string(b)
}
