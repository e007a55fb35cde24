package domain_test

import (
	"testing"

	"github.com/aretw0/errand/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func threeSteps() domain.Plan {
	return domain.Plan{
		{ID: "s1", ToolName: "web_search", Status: domain.StepPending},
		{ID: "s2", ToolName: "web_search", Status: domain.StepPending},
		{ID: "s3", ToolName: "web_search", Status: domain.StepPending},
	}
}

func TestApply_StepIndexNeverDecreases(t *testing.T) {
	s := domain.NewAgentState("sess", "task", domain.TaskGeneral)
	s.Apply(domain.Update{ExecutionPlan: threeSteps(), CurrentStepIndex: domain.Ptr(2)})
	require.Equal(t, 2, s.CurrentStepIndex)

	s.Apply(domain.Update{CurrentStepIndex: domain.Ptr(1)})
	assert.Equal(t, 2, s.CurrentStepIndex)
}

func TestApply_StepIndexClampedToPlanLength(t *testing.T) {
	s := domain.NewAgentState("sess", "task", domain.TaskGeneral)
	s.Apply(domain.Update{ExecutionPlan: threeSteps(), CurrentStepIndex: domain.Ptr(7)})

	assert.Equal(t, 3, s.CurrentStepIndex)
	assert.True(t, s.PlanComplete())
}

func TestApply_ClearingPauseDropsRequest(t *testing.T) {
	s := domain.NewAgentState("sess", "task", domain.TaskGeneral)
	s.Apply(domain.Pause(domain.HumanInputRequest{Type: domain.InputClarification, Question: "Where?"}))
	require.True(t, s.Paused())

	s.Apply(domain.Update{RequiresHumanInput: domain.Ptr(false)})
	assert.False(t, s.RequiresHumanInput)
	assert.Nil(t, s.HumanInputRequest)
}

func TestApply_PharmaciesDedupeIsIdempotent(t *testing.T) {
	found := []domain.Pharmacy{{ID: "p1", Name: "Central"}, {ID: "p2", Name: "Baixa"}}

	once := domain.NewAgentState("sess", "task", domain.TaskMedicine)
	once.Apply(domain.Update{Pharmacies: found})

	twice := domain.NewAgentState("sess", "task", domain.TaskMedicine)
	twice.Apply(domain.Update{Pharmacies: found})
	twice.Apply(domain.Update{Pharmacies: found})

	assert.Equal(t, once.Pharmacies, twice.Pharmacies)
	assert.Len(t, twice.Pharmacies, 2)
}

func TestApply_CallResultsKeepFirstPerPharmacy(t *testing.T) {
	s := domain.NewAgentState("sess", "task", domain.TaskMedicine)
	s.Apply(domain.Update{CallResults: []domain.CallResult{{PharmacyID: "p1", InStock: true}}})
	s.Apply(domain.Update{CallResults: []domain.CallResult{
		{PharmacyID: "p1", InStock: false},
		{PharmacyID: "p2", InStock: true},
	}})

	require.Len(t, s.CallResults, 2)
	assert.True(t, s.CallResults[0].InStock)
	assert.Equal(t, "p2", s.CallResults[1].PharmacyID)
}

func TestApply_FailIsTerminal(t *testing.T) {
	s := domain.NewAgentState("sess", "task", domain.TaskGeneral)
	s.Apply(domain.Fail("boom"))

	assert.Equal(t, "boom", s.Error)
	assert.Equal(t, domain.PhaseError, s.CurrentPhase)
	assert.True(t, s.CurrentPhase.Terminal())
}

func TestUpdateMerge_AccumulatesDomainFields(t *testing.T) {
	a := domain.Update{Pharmacies: []domain.Pharmacy{{ID: "p1"}}}
	b := domain.Update{Pharmacies: []domain.Pharmacy{{ID: "p2"}}, Phase: domain.Ptr(domain.PhaseValidation)}

	m := a.Merge(b)

	assert.Len(t, m.Pharmacies, 2)
	assert.Equal(t, domain.PhaseValidation, *m.Phase)
}
