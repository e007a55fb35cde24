package agents

import (
	"github.com/aretw0/errand/internal/nodes"
	"github.com/aretw0/errand/internal/tools"
	"github.com/aretw0/errand/pkg/domain"
)

// GeneralProfile answers open questions with web searches.
func GeneralProfile() nodes.Profile {
	return nodes.Profile{
		TaskType: domain.TaskGeneral,
		Persona:  "You are a helpful assistant that researches questions on the web.",
		Fields: []nodes.Field{
			{Key: "query", Description: "What the user wants to know or get done"},
		},
		Required:           []string{"query"},
		PlanningHint:       "Prefer one to three focused web searches.",
		AfterClarification: domain.PhasePlanning,
		AfterValidation:    domain.PhaseComplete,
		DefaultPlan: func(s *domain.AgentState) domain.Plan {
			return domain.Plan{{
				Name:     "Search the web",
				ToolName: tools.WebSearch,
				ToolArgs: map[string]any{"query": s.GatheredInfo.Query},
			}}
		},
	}
}
