package parse_test

import (
	"testing"

	"github.com/aretw0/errand/pkg/llm/parse"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type step struct {
	ToolName string         `json:"toolName"`
	ToolArgs map[string]any `json:"toolArgs"`
}

type plan struct {
	Steps []step `json:"steps"`
}

func TestJSON_Tiers(t *testing.T) {
	tests := []struct {
		name  string
		input string
		tier  parse.Tier
		steps int
	}{
		{
			name:  "direct",
			input: `{"steps":[{"toolName":"web_search"}]}`,
			tier:  parse.TierDirect,
			steps: 1,
		},
		{
			name:  "fenced with language",
			input: "Here is the plan:\n```json\n{\"steps\":[{\"toolName\":\"a\"},{\"toolName\":\"b\"}]}\n```\nGood luck!",
			tier:  parse.TierFence,
			steps: 2,
		},
		{
			name:  "fenced without language",
			input: "```\n{\"steps\":[]}\n```",
			tier:  parse.TierFence,
			steps: 0,
		},
		{
			name:  "embedded in prose",
			input: `Sure! {"steps":[{"toolName":"web_search","toolArgs":{"query":"a {tricky} one"}}]} Let me know.`,
			tier:  parse.TierBalanced,
			steps: 1,
		},
		{
			name:  "truncated mid string",
			input: `{"steps":[{"toolName":"web_search"},{"toolName":"phone_ca`,
			tier:  parse.TierRepaired,
			steps: 2,
		},
		{
			name:  "truncated after separator",
			input: `{"steps":[{"toolName":"web_search","toolArgs":{"q":"x"}},`,
			tier:  parse.TierRepaired,
			steps: 1,
		},
		{
			name:  "truncated inside unclosed fence",
			input: "```json\n{\"steps\":[{\"toolName\":\"web_search\"}",
			tier:  parse.TierRepaired,
			steps: 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var p plan
			tier, err := parse.JSON(tt.input, &p)
			require.NoError(t, err)
			assert.Equal(t, tt.tier, tier)
			assert.Len(t, p.Steps, tt.steps)
		})
	}
}

func TestJSON_SkipsCandidatesThatDoNotFit(t *testing.T) {
	input := `Options were [1, 2] but the answer is {"steps":[{"toolName":"x"}]}`

	var p plan
	tier, err := parse.JSON(input, &p)
	require.NoError(t, err)
	assert.Equal(t, parse.TierBalanced, tier)
	require.Len(t, p.Steps, 1)
	assert.Equal(t, "x", p.Steps[0].ToolName)
}

func TestJSON_NoJSON(t *testing.T) {
	var p plan
	_, err := parse.JSON("I could not come up with a plan.", &p)
	assert.ErrorIs(t, err, parse.ErrNoJSON)

	_, err = parse.JSON("   ", &p)
	assert.ErrorIs(t, err, parse.ErrNoJSON)
}

func TestOr_FallsBackToDefault(t *testing.T) {
	fallback := plan{Steps: []step{{ToolName: "web_search"}}}

	got, tier := parse.Or("nope", fallback)
	assert.Equal(t, parse.TierDefault, tier)
	assert.Equal(t, fallback, got)

	got, tier = parse.Or(`{"steps":[]}`, fallback)
	assert.Equal(t, parse.TierDirect, tier)
	assert.Empty(t, got.Steps)
}

func TestRepair(t *testing.T) {
	tests := []struct {
		in, out string
	}{
		{`{"a":1`, `{"a":1}`},
		{`{"a":"hel`, `{"a":"hel"}`},
		{`{"a":`, `{"a":null}`},
		{`{"a":1,"b"`, `{"a":1}`},
		{`[{"a":[1,2`, `[{"a":[1,2]}]`},
		{`noise {"a":"x\`, `{"a":"x"}`},
	}
	for _, tt := range tests {
		got, ok := parse.Repair(tt.in)
		require.True(t, ok, tt.in)
		assert.JSONEq(t, tt.out, got, tt.in)
	}

	_, ok := parse.Repair("no brackets here")
	assert.False(t, ok)
}

func TestBalanced_IgnoresBracketsInStrings(t *testing.T) {
	got := parse.Balanced(`a {"k":"}"} b [1,"]"] c {unclosed`)
	assert.Equal(t, []string{`{"k":"}"}`, `[1,"]"]`}, got)
}
