package nodes

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/aretw0/errand/internal/runtime"
	"github.com/aretw0/errand/pkg/domain"
	"github.com/aretw0/errand/pkg/llm"
)

type completeness struct {
	Sufficient    bool     `json:"sufficient"`
	MissingFields []string `json:"missingFields"`
	Question      string   `json:"question"`
}

// Clarification extracts fields from the turn's message and pauses with a
// follow-up question until the profile's required fields are present.
func Clarification(d Deps, p Profile) runtime.NodeFunc {
	d = d.WithDefaults()
	return func(ctx context.Context, s *domain.AgentState) (domain.Update, error) {
		var u domain.Update
		info := s.GatheredInfo

		if msg := strings.TrimSpace(s.UserMessage); msg != "" {
			extracted, err := extract(ctx, d, p, info, msg)
			if err != nil {
				return domain.Update{}, fmt.Errorf("extract information: %w", err)
			}
			u.GatheredInfo = &extracted
			u.UserMessage = domain.Ptr("")
			info = info.Merge(extracted)
		}

		missing := info.Missing(p.Required...)
		verdict, err := complete(ctx, d, llm.Request{
			Name:   "completeness",
			System: completenessSystem,
			Prompt: completenessPrompt(p, info, missing),
		}, completeness{Sufficient: len(missing) == 0})
		if err != nil {
			if ctx.Err() != nil {
				return domain.Update{}, err
			}
			d.Logger.Warn("completeness check failed, using required fields", "task_id", s.TaskID, "err", err)
			verdict = completeness{Sufficient: len(missing) == 0}
		}

		// Required fields are authoritative. The model may only hold the
		// task back by naming what else it needs.
		sufficient := len(missing) == 0 && (verdict.Sufficient || len(verdict.MissingFields) == 0)
		if sufficient {
			return u.Merge(domain.Update{
				Phase:              domain.Ptr(p.AfterClarification),
				HasSufficientInfo:  domain.Ptr(true),
				RequiresHumanInput: domain.Ptr(false),
			}), nil
		}

		fields := missing
		for _, f := range verdict.MissingFields {
			if !slices.Contains(fields, f) {
				fields = append(fields, f)
			}
		}
		question := strings.TrimSpace(verdict.Question)
		if question == "" {
			question = defaultQuestion(p, fields)
		}
		pause := domain.Pause(domain.HumanInputRequest{
			Type:          domain.InputClarification,
			Question:      question,
			MissingFields: fields,
		})
		pause.Phase = domain.Ptr(domain.PhaseClarification)
		pause.HasSufficientInfo = domain.Ptr(false)
		return u.Merge(pause), nil
	}
}

func extract(ctx context.Context, d Deps, p Profile, info domain.GatheredInfo, msg string) (domain.GatheredInfo, error) {
	raw, err := complete(ctx, d, llm.Request{
		Name:   "extract",
		System: extractSystem,
		Prompt: extractPrompt(p, info, msg),
	}, map[string]any{})
	if err != nil {
		return domain.GatheredInfo{}, err
	}
	for k := range raw {
		// Reserved keys carry folded state and are never taken from the model.
		if strings.HasPrefix(k, "_") {
			delete(raw, k)
		}
	}
	if _, ok := raw["query"]; !ok && info.Query == "" {
		raw["query"] = msg
	}
	return domain.InfoFromMap(raw)
}

func defaultQuestion(p Profile, missing []string) string {
	if len(missing) == 0 {
		return "Could you tell me a bit more about what you need?"
	}
	names := make([]string, len(missing))
	for i, key := range missing {
		names[i] = key
		for _, f := range p.Fields {
			if f.Key == key && f.Description != "" {
				names[i] = strings.ToLower(f.Description)
				break
			}
		}
	}
	return fmt.Sprintf("Could you tell me %s?", strings.Join(names, " and "))
}
