package domain

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/allisson/capvault/internal/errors"
)

func TestRule_Validate(t *testing.T) {
	tests := []struct {
		name    string
		rule    Rule
		wantErr bool
	}{
		{name: "command", rule: Rule{Pattern: "/web", Target: "web-search", Aliases: []string{"/w", "search"}}},
		{name: "default", rule: Rule{Pattern: "default", Target: "chat-default"}},
		{name: "missing pattern", rule: Rule{Target: "web-search"}, wantErr: true},
		{name: "missing target", rule: Rule{Pattern: "/web"}, wantErr: true},
		{name: "pattern without prefix", rule: Rule{Pattern: "web", Target: "web-search"}, wantErr: true},
		{name: "pattern with spaces", rule: Rule{Pattern: "/web search", Target: "web-search"}, wantErr: true},
		{name: "builtin pattern", rule: Rule{Pattern: "/status", Target: "web-search"}, wantErr: true},
		{name: "builtin alias", rule: Rule{Pattern: "/web", Target: "web-search", Aliases: []string{"/help"}}, wantErr: true},
		{name: "invalid alias", rule: Rule{Pattern: "/web", Target: "web-search", Aliases: []string{"/W W"}}, wantErr: true},
		{name: "invalid target", rule: Rule{Pattern: "/web", Target: "Web Search"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.rule.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestTable_Validate(t *testing.T) {
	valid := Table{
		Default:  "chat-default",
		Research: "research",
		Rules:    []Rule{{Pattern: "/web", Target: "web-search"}},
	}
	assert.NoError(t, valid.Validate())
	assert.NoError(t, (&Table{}).Validate())

	badRule := valid
	badRule.Rules = []Rule{{Pattern: "/web", Target: "web-search"}, {Pattern: "/research", Target: "x"}}
	err := badRule.Validate()
	assert.ErrorIs(t, err, ErrInvalidRoutingTable)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	assert.Contains(t, err.Error(), "rule 1")

	badDefault := valid
	badDefault.Default = "Chat Default"
	assert.ErrorIs(t, badDefault.Validate(), ErrInvalidRoutingTable)
}

func TestTable_DefaultTarget(t *testing.T) {
	tests := []struct {
		name  string
		table Table
		want  string
	}{
		{name: "fallback", table: Table{}, want: "chat-default"},
		{name: "default key", table: Table{Default: "assistant"}, want: "assistant"},
		{
			name: "default rule",
			table: Table{Rules: []Rule{
				{Pattern: "default", Target: "low", Priority: 1},
				{Pattern: "default", Target: "high", Priority: 5},
				{Pattern: "/web", Target: "web-search", Priority: 10},
			}},
			want: "high",
		},
		{
			name: "default rule tie",
			table: Table{Rules: []Rule{
				{Pattern: "default", Target: "zeta"},
				{Pattern: "default", Target: "alpha"},
			}},
			want: "alpha",
		},
		{
			name:  "default key wins over rules",
			table: Table{Default: "assistant", Rules: []Rule{{Pattern: "default", Target: "other", Priority: 99}}},
			want:  "assistant",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.table.DefaultTarget("chat-default"))
		})
	}
}

func TestTable_WithVersion(t *testing.T) {
	table := &Table{Rules: []Rule{{Pattern: "/web", Target: "web-search"}}}
	stamped := table.WithVersion(7)

	assert.Equal(t, uint64(0), table.Version())
	assert.Equal(t, uint64(7), stamped.Version())

	stamped.Rules[0].Target = "changed"
	assert.Equal(t, "web-search", table.Rules[0].Target)
}

func TestTable_Routes(t *testing.T) {
	table := Table{Rules: []Rule{
		{Pattern: "default", Target: "chat-default"},
		{Pattern: "/Web", Target: "web-search", Priority: 10, Aliases: []string{"/W"}},
		{Pattern: "/wiki", Target: "research", Priority: 10},
		{Pattern: "/tr", Target: "transcribe"},
	}}

	routes := table.Routes()
	require.Len(t, routes, 4)
	slices.SortFunc(routes, CompareRoutes)

	assert.Equal(t, []Route{
		{Command: "w", Target: "web-search", Priority: 10},
		{Command: "web", Target: "web-search", Priority: 10, Primary: true},
		{Command: "wiki", Target: "research", Priority: 10, Primary: true},
		{Command: "tr", Target: "transcribe", Primary: true},
	}, routes)
}
