package service

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeRequest(t *testing.T) {
	t.Run("without credential", func(t *testing.T) {
		inv := invocation("hello")
		inv.Payload.Context = nil

		body, err := encodeRequest(inv)
		require.NoError(t, err)

		var doc map[string]any
		require.NoError(t, json.Unmarshal(body, &doc))
		assert.Equal(t, "hello", doc["message"])
		assert.Equal(t, map[string]any{}, doc["context"])
		assert.NotContains(t, doc, "credential")
	})

	tests := []struct {
		name       string
		credential string
	}{
		{name: "plain", credential: "sk-test-abc"},
		{name: "quotes and backslashes", credential: `sk-"quoted"\path\`},
		{name: "control characters", credential: "line1\nline2\ttab\x00\x1f"},
		{name: "non-ascii", credential: "clé-секрет-鍵"},
		{name: "html characters", credential: "<a&b>"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv := invocation("hi")
			inv.Credential = newSession(t, tt.credential)

			body, err := encodeRequest(inv)
			require.NoError(t, err)
			require.True(t, json.Valid(body), string(body))

			var doc struct {
				Kind       string            `json:"kind"`
				Capability string            `json:"capability"`
				Message    string            `json:"message"`
				Context    map[string]string `json:"context"`
				Credential string            `json:"credential"`
			}
			require.NoError(t, json.Unmarshal(body, &doc))
			assert.Equal(t, tt.credential, doc.Credential)
			assert.Equal(t, "chat-default", doc.Capability)
			assert.Equal(t, "hi", doc.Message)
			assert.Equal(t, map[string]string{"research": "false"}, doc.Context)
			assert.Equal(t, 1, bytes.Count(body, []byte(`"credential"`)))
		})
	}

	t.Run("closed session", func(t *testing.T) {
		inv := invocation("hi")
		inv.Credential = newSession(t, "sk-test-abc")
		require.NoError(t, inv.Credential.Close())

		_, err := encodeRequest(inv)
		assert.Error(t, err)
	})
}

func TestAppendCredential_FitsPreallocatedBuffer(t *testing.T) {
	doc := []byte(`{"kind":"worker"}`)
	credential := bytes.Repeat([]byte{'\n'}, 64)

	body := appendCredential(doc, credential)

	// A capacity different from the initial allocation means append grew the slice.
	assert.Equal(t, len(doc)+len(credentialField)+6*len(credential)+2, cap(body))
	assert.True(t, json.Valid(body))
}
