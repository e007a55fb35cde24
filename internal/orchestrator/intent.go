package orchestrator

import (
	"context"
	"regexp"

	"github.com/aretw0/errand/pkg/domain"
	"github.com/aretw0/errand/pkg/llm"
	"github.com/aretw0/errand/pkg/llm/parse"
)

var intentKeywords = []struct {
	taskType domain.TaskType
	re       *regexp.Regexp
}{
	{domain.TaskMedicine, regexp.MustCompile(`(?i)\b(medicines?|medications?|pharmac(y|ies|ist)|drugs?|pills?|tablets?|prescriptions?|paracetamol|ibuprofen|aspirin|antibiotics?|insulin)\b`)},
	{domain.TaskTravel, regexp.MustCompile(`(?i)\b(trips?|travel(l?ing)?|flights?|hotels?|vacation|holidays?|itinerar(y|ies)|getaway|journey|tour)\b`)},
}

// KeywordIntent matches msg against the per-type keyword sets. The first
// matching type wins.
func KeywordIntent(msg string) (domain.TaskType, bool) {
	for _, k := range intentKeywords {
		if k.re.MatchString(msg) {
			return k.taskType, true
		}
	}
	return "", false
}

const classifySystem = `You route user requests to an assistant. Answer with a JSON object {"taskType": "<type>"} where type is one of:
- "medicine": finding a medicine or pharmacy
- "travel": planning or booking a trip
- "general": anything else`

// classify asks the model for a task type. Any failure falls back to general.
func (o *Orchestrator) classify(ctx context.Context, msg string) domain.TaskType {
	if o.llm == nil {
		return domain.TaskGeneral
	}
	text, err := o.llm.Complete(ctx, llm.Request{
		Name:      "classify",
		System:    classifySystem,
		Prompt:    msg,
		JSON:      true,
		MaxTokens: 50,
	})
	if err != nil {
		o.logger.Warn("intent classification failed", "err", err)
		return domain.TaskGeneral
	}
	out, _ := parse.Or(text, struct {
		TaskType string `json:"taskType"`
	}{})
	if tt, ok := domain.ParseTaskType(out.TaskType); ok {
		return tt
	}
	return domain.TaskGeneral
}
