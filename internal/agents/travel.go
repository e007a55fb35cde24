package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/aretw0/errand/internal/nodes"
	"github.com/aretw0/errand/internal/runtime"
	"github.com/aretw0/errand/internal/tools"
	"github.com/aretw0/errand/pkg/domain"
	"github.com/aretw0/errand/pkg/llm"
	"github.com/aretw0/errand/pkg/llm/parse"
)

const (
	defaultTripDays = 3
	maxTripDays     = 14
)

// TravelProfile researches a destination, drafts an itinerary the user
// confirms or refines, and books a hotel once accepted.
func TravelProfile() nodes.Profile {
	return nodes.Profile{
		TaskType: domain.TaskTravel,
		Persona:  "You are a travel planner who drafts itineraries and books hotels.",
		Fields: []nodes.Field{
			{Key: "destination", Description: "Where the user wants to go"},
			{Key: "startDate", Description: "The first day of the trip, as YYYY-MM-DD"},
			{Key: "endDate", Description: "The last day of the trip, as YYYY-MM-DD"},
			{Key: "travelers", Description: "How many people are travelling"},
			{Key: "budget", Description: "The budget, if stated"},
			{Key: "interests", Description: "Activities or themes the user enjoys, as a list"},
			{Key: "origin", Description: "Where the trip starts"},
		},
		Required: []string{"destination", "startDate"},
		PlanningHint: `Research the destination with web searches: sights matching the
user's interests, areas to stay in, and getting around. Do not book anything
yet.`,
		AfterClarification: domain.PhaseResearch,
		AfterValidation:    domain.PhaseItinerary,
		ConfirmRefinement:  true,
		DefaultPlan:        travelPlan,
		MergeResult:        mergeTravel,
		Summarize:          summarizeItinerary,
		AcceptPhase: func(s *domain.AgentState) domain.Phase {
			if s.Itinerary == nil {
				return domain.PhaseItinerary
			}
			return domain.PhaseBooking
		},
	}
}

func travel(d nodes.Deps, p nodes.Profile) *runtime.Graph {
	toConfirmation := runtime.StandardRoutes(runtime.InPhase(domain.PhaseConfirmation), domain.NodeConfirmation, domain.Terminate)
	return runtime.NewGraph().
		AddNode(domain.NodeClarification, nodes.Clarification(d, p),
			runtime.StandardRoutes(runtime.InPhase(domain.PhaseResearch), domain.NodeResearch, domain.Terminate)...).
		AddNode(domain.NodeResearch, nodes.Planning(d, p),
			runtime.StandardRoutes(runtime.InPhase(domain.PhaseExecution), domain.NodeExecution, domain.Terminate)...).
		AddNode(domain.NodeExecution, nodes.Execution(d, p),
			runtime.StandardRoutes(runtime.InPhase(domain.PhaseValidation), domain.NodeValidation, domain.NodeExecution)...).
		AddNode(domain.NodeValidation, nodes.Validation(d, p),
			runtime.Rule{When: runtime.HasError, To: domain.Terminate},
			runtime.Rule{When: runtime.InPhase(domain.PhaseItinerary), To: domain.NodeItinerary},
			runtime.Rule{When: runtime.InPhase(domain.PhaseConfirmation), To: domain.NodeConfirmation},
			runtime.Rule{When: runtime.Paused, To: domain.Terminate},
			runtime.Otherwise(domain.Terminate)).
		AddNode(domain.NodeItinerary, Itinerary(d), toConfirmation...).
		AddNode(domain.NodeRefinement, Refinement(d), toConfirmation...).
		AddNode(domain.NodeConfirmation, nodes.Confirmation(d, p),
			runtime.Rule{When: runtime.HasError, To: domain.Terminate},
			runtime.Rule{When: runtime.Paused, To: domain.Terminate},
			runtime.Rule{When: runtime.InPhase(domain.PhaseBooking), To: domain.NodeBooking},
			runtime.Rule{When: runtime.InPhase(domain.PhaseItinerary), To: domain.NodeItinerary},
			runtime.Rule{When: runtime.InPhase(domain.PhaseRefinement), To: domain.NodeRefinement},
			runtime.Otherwise(domain.Terminate)).
		AddNode(domain.NodeBooking, Booking(d),
			runtime.Rule{When: runtime.HasError, To: domain.Terminate},
			runtime.Otherwise(domain.Terminate))
}

func travelPlan(s *domain.AgentState) domain.Plan {
	dest := s.GatheredInfo.Destination
	plan := domain.Plan{
		{Name: "Top sights", ToolName: tools.WebSearch, ToolArgs: map[string]any{"query": "things to do in " + dest}},
		{Name: "Where to stay", ToolName: tools.WebSearch, ToolArgs: map[string]any{"query": "best areas to stay in " + dest}},
	}
	if len(s.GatheredInfo.Interests) > 0 {
		plan = append(plan, domain.ExecutionStep{
			Name:     "Interests",
			ToolName: tools.WebSearch,
			ToolArgs: map[string]any{"query": strings.Join(s.GatheredInfo.Interests, " ") + " in " + dest},
		})
	}
	return plan
}

func mergeTravel(step domain.ExecutionStep) (domain.Update, error) {
	switch step.ToolName {
	case tools.Geocode:
		return mergeLocation(step)
	case tools.BookHotel:
		var b domain.Booking
		if err := decodeResult(step.Result, &b); err != nil {
			return domain.Update{}, err
		}
		return domain.Update{Bookings: []domain.Booking{b}}, nil
	}
	return domain.Update{}, nil
}

const itinerarySystem = `You design day-by-day travel itineraries. Reply with JSON:
{"title": string, "summary": string, "hotel": string,
 "days": [{"day": int, "title": string, "activities": [string]}]}`

// Itinerary drafts the itinerary from research results and hands it to
// confirmation.
func Itinerary(d nodes.Deps) runtime.NodeFunc {
	d = d.WithDefaults()
	return func(ctx context.Context, s *domain.AgentState) (domain.Update, error) {
		it, err := draft(ctx, d, s, "")
		if err != nil {
			return domain.Update{}, err
		}
		return drafted(it), nil
	}
}

// Refinement redrafts the itinerary with the user's feedback.
func Refinement(d nodes.Deps) runtime.NodeFunc {
	d = d.WithDefaults()
	return func(ctx context.Context, s *domain.AgentState) (domain.Update, error) {
		it, err := draft(ctx, d, s, s.Feedback)
		if err != nil {
			return domain.Update{}, err
		}
		u := drafted(it)
		u.RefinementReason = domain.Ptr("")
		return u, nil
	}
}

func drafted(it domain.Itinerary) domain.Update {
	return domain.Update{
		Itinerary:   &it,
		Phase:       domain.Ptr(domain.PhaseConfirmation),
		UserMessage: domain.Ptr(""),
	}
}

func draft(ctx context.Context, d nodes.Deps, s *domain.AgentState, feedback string) (domain.Itinerary, error) {
	fallback := defaultItinerary(s)
	if s.Itinerary != nil {
		fallback = carryOver(*s.Itinerary, fallback)
	}
	text, err := d.LLM.Complete(ctx, llm.Request{
		Name:   "itinerary",
		System: itinerarySystem,
		Prompt: itineraryPrompt(d, s, feedback),
		JSON:   true,
	})
	if err != nil {
		if ctx.Err() != nil {
			return domain.Itinerary{}, err
		}
		d.Logger.Warn("itinerary call failed, using a default draft", "task_id", s.TaskID, "err", err)
		text = ""
	}
	it, tier := parse.Or(text, fallback)
	if tier == parse.TierDefault || len(it.Days) == 0 {
		it.Days = fallback.Days
	}
	if it.Title == "" {
		it.Title = fallback.Title
	}
	if it.Hotel == "" {
		it.Hotel = fallback.Hotel
	}
	it.Version = 1
	if s.Itinerary != nil {
		it.Version = s.Itinerary.Version + 1
	}
	return it, nil
}

// carryOver fills the gaps of the previous draft from def.
func carryOver(prev, def domain.Itinerary) domain.Itinerary {
	if prev.Title == "" {
		prev.Title = def.Title
	}
	if prev.Summary == "" {
		prev.Summary = def.Summary
	}
	if prev.Hotel == "" {
		prev.Hotel = def.Hotel
	}
	if len(prev.Days) == 0 {
		prev.Days = def.Days
	}
	return prev
}

func itineraryPrompt(d nodes.Deps, s *domain.AgentState, feedback string) string {
	results := nodes.Clip(nodes.ResultsJSON(s.ExecutionPlan), d.MaxPayloadChars)
	var b strings.Builder
	fmt.Fprintf(&b, "Trip details: %s\n\nResearch:\n%s\n", jsonText(s.GatheredInfo), results)
	if s.Itinerary != nil {
		fmt.Fprintf(&b, "\nCurrent itinerary:\n%s\n", jsonText(s.Itinerary))
	}
	if feedback != "" {
		fmt.Fprintf(&b, "\nRevise it according to this feedback: %s\n", feedback)
	}
	return b.String()
}

func defaultItinerary(s *domain.AgentState) domain.Itinerary {
	info := s.GatheredInfo
	it := domain.Itinerary{
		Title:   "Trip to " + info.Destination,
		Summary: fmt.Sprintf("A %d-day trip to %s.", tripDays(info.StartDate, info.EndDate), info.Destination),
		Hotel:   fmt.Sprintf("Hotel %s Central", info.Destination),
	}
	interests := info.Interests
	if len(interests) == 0 {
		interests = []string{"the old town", "local food", "museums"}
	}
	for day := range tripDays(info.StartDate, info.EndDate) {
		it.Days = append(it.Days, domain.ItineraryDay{
			Day:        day + 1,
			Title:      fmt.Sprintf("Day %d in %s", day+1, info.Destination),
			Activities: []string{"Explore " + interests[day%len(interests)]},
		})
	}
	return it
}

// tripDays counts the days between two YYYY-MM-DD dates inclusively.
func tripDays(start, end string) int {
	from, err1 := time.Parse(time.DateOnly, start)
	to, err2 := time.Parse(time.DateOnly, end)
	if err1 != nil || err2 != nil || to.Before(from) {
		return defaultTripDays
	}
	return min(int(to.Sub(from).Hours()/24)+1, maxTripDays)
}

func summarizeItinerary(s *domain.AgentState) string {
	it := s.Itinerary
	if it == nil {
		return "I researched your trip but have not drafted an itinerary yet."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "## %s\n", it.Title)
	if it.Summary != "" {
		fmt.Fprintf(&b, "\n%s\n", it.Summary)
	}
	if it.Hotel != "" {
		fmt.Fprintf(&b, "\n**Hotel:** %s\n", it.Hotel)
	}
	for _, day := range it.Days {
		fmt.Fprintf(&b, "\n**Day %d", day.Day)
		if day.Title != "" {
			fmt.Fprintf(&b, ": %s", day.Title)
		}
		b.WriteString("**\n")
		for _, a := range day.Activities {
			fmt.Fprintf(&b, "- %s\n", a)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// Booking reserves the itinerary's hotel and completes the task. A failed
// booking still completes, with the failure stated in the response.
func Booking(d nodes.Deps) runtime.NodeFunc {
	d = d.WithDefaults()
	return func(ctx context.Context, s *domain.AgentState) (domain.Update, error) {
		info := s.GatheredInfo
		step := domain.ExecutionStep{
			ID:       d.NewID(),
			Name:     "Book hotel",
			ToolName: tools.BookHotel,
			Status:   domain.StepPending,
			ToolArgs: map[string]any{
				"destination": info.Destination,
				"checkIn":     info.StartDate,
				"checkOut":    info.EndDate,
				"guests":      max(info.Travelers, 1),
			},
		}
		if s.Itinerary != nil && s.Itinerary.Hotel != "" {
			step.ToolArgs["hotel"] = s.Itinerary.Hotel
		}

		res := d.Runner.Run(ctx, s.TaskID, step, len(s.ExecutionPlan))
		if err := ctx.Err(); err != nil {
			return domain.Update{}, err
		}
		plan := append(s.ExecutionPlan.Clone(), res.Step)

		var text string
		u := domain.Update{ExecutionPlan: plan, CurrentStepIndex: domain.Ptr(len(plan))}
		if res.Failed() {
			d.Logger.Warn("booking failed", "task_id", s.TaskID, "err", res.Step.Error)
			text = fmt.Sprintf("Your itinerary is ready, but I could not book the hotel: %s", res.Step.Error)
		} else if booked, err := mergeTravel(res.Step); err != nil || len(booked.Bookings) == 0 {
			text = "Your itinerary is ready, but the booking confirmation was unreadable."
		} else {
			b := booked.Bookings[0]
			u = u.Merge(booked)
			text = fmt.Sprintf("Booked **%s** (reference %s) for your trip to %s.", b.Name, b.Reference, info.Destination)
		}
		if s.Itinerary != nil {
			text += "\n\n" + summarizeItinerary(s)
		}
		return u.Merge(nodes.Complete(text)), nil
	}
}

func jsonText(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}
