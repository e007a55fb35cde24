package agents

import (
	"errors"
	"fmt"

	"github.com/aretw0/errand/internal/nodes"
	"github.com/aretw0/errand/internal/tools"
	"github.com/aretw0/errand/pkg/domain"
)

// pharmaciesToCall is how many discovered pharmacies the default plan phones.
const pharmaciesToCall = 3

// MedicineProfile finds pharmacies near the user and calls them about stock.
func MedicineProfile() nodes.Profile {
	return nodes.Profile{
		TaskType: domain.TaskMedicine,
		Persona:  "You help people find a medicine in stock at a pharmacy near them.",
		Fields: []nodes.Field{
			{Key: "medicineName", Description: "The medicine the user needs"},
			{Key: "location", Description: "Where the user is, as an address or city"},
			{Key: "quantity", Description: "How much they need, if stated"},
		},
		Required: []string{"medicineName", "location"},
		PlanningHint: `Search for pharmacies first, then call them. Phone call arguments may
reference search results with placeholders such as {{pharmacies.0.phone}},
{{pharmacies.0.id}} and {{pharmacies.0.name}}; known fields are available as
{{info.medicineName}} and {{info.location}}.`,
		AfterClarification: domain.PhasePlanning,
		AfterValidation:    domain.PhaseComplete,
		DefaultPlan:        medicinePlan,
		MergeResult:        mergeMedicine,
	}
}

func medicinePlan(*domain.AgentState) domain.Plan {
	plan := domain.Plan{{
		Name:     "Find nearby pharmacies",
		ToolName: tools.PharmacySearch,
		ToolArgs: map[string]any{
			"location":     "{{info.location}}",
			"medicineName": "{{info.medicineName}}",
		},
	}}
	for i := range pharmaciesToCall {
		plan = append(plan, domain.ExecutionStep{
			Name:     fmt.Sprintf("Call pharmacy %d", i+1),
			ToolName: tools.PhoneCall,
			ToolArgs: map[string]any{
				"phone":        fmt.Sprintf("{{pharmacies.%d.phone}}", i),
				"pharmacyId":   fmt.Sprintf("{{pharmacies.%d.id}}", i),
				"pharmacyName": fmt.Sprintf("{{pharmacies.%d.name}}", i),
				"medicine":     "{{info.medicineName}}",
			},
		})
	}
	return plan
}

func mergeMedicine(step domain.ExecutionStep) (domain.Update, error) {
	switch step.ToolName {
	case tools.PharmacySearch:
		var res tools.PharmacyResult
		if err := decodeResult(step.Result, &res); err != nil {
			return domain.Update{}, err
		}
		return domain.Update{Pharmacies: res.Pharmacies}, nil
	case tools.PhoneCall:
		var call domain.CallResult
		if err := decodeResult(step.Result, &call); err != nil {
			return domain.Update{}, err
		}
		if call.PharmacyID == "" {
			return domain.Update{}, errors.New("call result has no pharmacy id")
		}
		return domain.Update{CallResults: []domain.CallResult{call}}, nil
	case tools.Geocode:
		return mergeLocation(step)
	}
	return domain.Update{}, nil
}

func mergeLocation(step domain.ExecutionStep) (domain.Update, error) {
	var loc domain.Location
	if err := decodeResult(step.Result, &loc); err != nil {
		return domain.Update{}, err
	}
	if !loc.HasCoordinates() {
		return domain.Update{}, nil
	}
	return domain.Update{GatheredInfo: &domain.GatheredInfo{Location: &loc}}, nil
}
