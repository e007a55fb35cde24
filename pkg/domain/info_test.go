package domain_test

import (
	"encoding/json"
	"testing"

	"github.com/aretw0/errand/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGatheredInfo_MergeKeepsUnspecifiedKeys(t *testing.T) {
	a := domain.GatheredInfo{Extra: map[string]any{"a": 1}}
	b := domain.GatheredInfo{Extra: map[string]any{"b": 2}}

	merged := a.Merge(b)

	assert.Equal(t, map[string]any{"a": 1, "b": 2}, merged.ToMap())
}

func TestGatheredInfo_MergeOverwritesExistingKeys(t *testing.T) {
	a := domain.GatheredInfo{Extra: map[string]any{"a": 1}}
	b := domain.GatheredInfo{Extra: map[string]any{"a": 2}}

	assert.Equal(t, map[string]any{"a": 2}, a.Merge(b).ToMap())
}

func TestGatheredInfo_MergeTypedFields(t *testing.T) {
	a := domain.GatheredInfo{MedicineName: "paracetamol", Travelers: 2}
	b := domain.GatheredInfo{Location: &domain.Location{City: "Lisbon"}}

	merged := a.Merge(b)

	assert.Equal(t, "paracetamol", merged.MedicineName)
	assert.Equal(t, 2, merged.Travelers)
	require.NotNil(t, merged.Location)
	assert.Equal(t, "Lisbon", merged.Location.City)

	// The receiver is not mutated.
	assert.Nil(t, a.Location)
}

func TestInfoFromMap_CoercesLooseValues(t *testing.T) {
	info, err := domain.InfoFromMap(map[string]any{
		"medicineName": "ibuprofen",
		"travelers":    "3",
		"location":     "Rua Augusta, Lisbon",
		"urgency":      "high",
		"budget":       "",
		"origin":       nil,
	})
	require.NoError(t, err)

	assert.Equal(t, "ibuprofen", info.MedicineName)
	assert.Equal(t, 3, info.Travelers)
	require.NotNil(t, info.Location)
	assert.Equal(t, "Rua Augusta, Lisbon", info.Location.Address)
	assert.Equal(t, map[string]any{"urgency": "high"}, info.Extra)
	assert.False(t, info.Has("budget"))
	assert.False(t, info.Has("origin"))
}

func TestGatheredInfo_JSONIsFlat(t *testing.T) {
	info := domain.GatheredInfo{
		Destination: "Porto",
		Extra:       map[string]any{"pace": "slow"},
	}

	data, err := json.Marshal(info)
	require.NoError(t, err)
	assert.JSONEq(t, `{"destination":"Porto","pace":"slow"}`, string(data))

	var back domain.GatheredInfo
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, "Porto", back.Destination)
	assert.Equal(t, "slow", back.Extra["pace"])
}

func TestGatheredInfo_Missing(t *testing.T) {
	info := domain.GatheredInfo{MedicineName: "paracetamol"}
	assert.Equal(t, []string{"location"}, info.Missing("medicineName", "location"))
}
