package nodes

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/aretw0/errand/pkg/domain"
)

const extractSystem = `You extract structured fields from a user's message.
Reply with a single JSON object. Use only the keys listed. Omit keys the
message does not mention. Never invent values.`

const completenessSystem = `You decide whether enough information has been
gathered to plan the task. Reply with JSON:
{"sufficient": bool, "missingFields": [string], "question": string}
The question asks the user, in one friendly sentence, for what is missing.`

const planSystem = `You plan tool calls that accomplish a task. Reply with JSON:
{"steps": [{"name": string, "description": string, "toolName": string, "toolArgs": object}]}
Use only the tools listed. Keep plans short.`

const validateSystem = `You review the results of executed steps. Start your
reply with exactly one token: VALID if the results answer the request, or
NEEDS REFINEMENT followed by a colon and the reason.`

const respondSystem = `You write the final answer for the user from the results
of the executed steps. Be concise and concrete. Use markdown.`

func extractPrompt(p Profile, info domain.GatheredInfo, message string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\nKeys:\n", p.Persona)
	for _, f := range p.Fields {
		fmt.Fprintf(&b, "- %s: %s\n", f.Key, f.Description)
	}
	fmt.Fprintf(&b, "\nAlready known: %s\n\nMessage: %s", toJSON(info), message)
	return b.String()
}

func completenessPrompt(p Profile, info domain.GatheredInfo, missing []string) string {
	return fmt.Sprintf("%s\n\nRequired: %s\nGathered: %s\nStill missing: %s",
		p.Persona, strings.Join(p.Required, ", "), toJSON(info), strings.Join(missing, ", "))
}

func planPrompt(p Profile, s *domain.AgentState, tools []domain.Tool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\nRequest: %s\n\nTools:\n", p.Persona, toJSON(s.GatheredInfo))
	for _, t := range tools {
		fmt.Fprintf(&b, "- %s: %s parameters=%s\n", t.Name, t.Description, toJSON(t.Parameters))
	}
	if p.PlanningHint != "" {
		fmt.Fprintf(&b, "\n%s\n", p.PlanningHint)
	}
	if len(s.ExecutionPlan) > 0 {
		fmt.Fprintf(&b, "\nSteps already run:\n%s\n", ResultsJSON(s.ExecutionPlan))
	}
	if s.RefinementReason != "" {
		fmt.Fprintf(&b, "\nThe previous results were insufficient: %s\nPlan only the additional steps needed.\n", s.RefinementReason)
	}
	return b.String()
}

func validatePrompt(p Profile, s *domain.AgentState, payload string) string {
	return fmt.Sprintf("%s\n\nRequest: %s\n\nResults:\n%s", p.Persona, toJSON(s.GatheredInfo), payload)
}

func respondPrompt(p Profile, s *domain.AgentState, payload string) string {
	return fmt.Sprintf("%s\n\nRequest: %s\n\nResults:\n%s", p.Persona, toJSON(s.GatheredInfo), payload)
}

// stepSummary is the projection of a step shown to the model.
type stepSummary struct {
	Name     string `json:"name"`
	ToolName string `json:"toolName"`
	Status   string `json:"status"`
	Result   any    `json:"result,omitempty"`
	Error    string `json:"error,omitempty"`
}

// ResultsJSON renders the plan's outcomes for a prompt.
func ResultsJSON(plan domain.Plan) string {
	out := make([]stepSummary, len(plan))
	for i, st := range plan {
		out[i] = stepSummary{Name: st.Name, ToolName: st.ToolName, Status: string(st.Status), Result: st.Result, Error: st.Error}
	}
	return toJSON(out)
}

// Clip cuts s to at most n bytes without splitting a rune.
func Clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func toJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}
