package steps_test

import (
	"testing"

	"github.com/aretw0/errand/internal/steps"
	"github.com/aretw0/errand/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpand(t *testing.T) {
	s := domain.NewAgentState("s", "t", domain.TaskMedicine)
	s.GatheredInfo.MedicineName = "ibuprofen"
	s.Pharmacies = []domain.Pharmacy{
		{ID: "p1", Name: "Corner Drugs", Phone: "555-0100", Distance: 1.5},
		{ID: "p2", Name: "Main St Pharmacy", Phone: "555-0200"},
	}
	data, err := steps.TemplateData(s)
	require.NoError(t, err)

	args := map[string]any{
		"phone":       "{{pharmacies.1.phone}}",
		"distance":    "{{ pharmacies.0.distanceKm }}",
		"script":      "Do you have {{info.medicineName}} at {{pharmacies.0.name}}?",
		"nested":      map[string]any{"ids": []any{"{{pharmacies.0.id}}", "static"}},
		"untemplated": 3,
	}
	assert.True(t, steps.HasPlaceholders(args))

	out, err := steps.Expand(args, data)
	require.NoError(t, err)
	assert.Equal(t, "555-0200", out["phone"])
	assert.Equal(t, 1.5, out["distance"])
	assert.Equal(t, "Do you have ibuprofen at Corner Drugs?", out["script"])
	assert.Equal(t, map[string]any{"ids": []any{"p1", "static"}}, out["nested"])
	assert.Equal(t, 3, out["untemplated"])
	assert.Equal(t, "{{pharmacies.1.phone}}", args["phone"], "input is not mutated")
}

func TestExpand_Unresolved(t *testing.T) {
	data, err := steps.TemplateData(domain.NewAgentState("s", "t", domain.TaskMedicine))
	require.NoError(t, err)

	for _, in := range []string{"{{pharmacies.0.phone}}", "call {{pharmacies.9.name}} now", "{{nope}}"} {
		_, err := steps.Expand(map[string]any{"v": in}, data)
		assert.ErrorIs(t, err, steps.ErrUnresolved, in)
	}
	assert.False(t, steps.HasPlaceholders(map[string]any{"v": "plain {text}"}))
}
