package domain

import (
	"encoding/json"
	"fmt"
	"maps"
	"reflect"
	"slices"
	"strings"

	"github.com/mitchellh/mapstructure"
)

// GatheredInfo accumulates what clarification has learned about a request.
// Known fields are typed; anything else an extraction returns lands in Extra.
// On the wire it is a single flat object.
type GatheredInfo struct {
	Query        string    `json:"query,omitempty"`
	Location     *Location `json:"location,omitempty"`
	MedicineName string    `json:"medicineName,omitempty"`
	Quantity     string    `json:"quantity,omitempty"`
	Destination  string    `json:"destination,omitempty"`
	Origin       string    `json:"origin,omitempty"`
	StartDate    string    `json:"startDate,omitempty"`
	EndDate      string    `json:"endDate,omitempty"`
	Travelers    int       `json:"travelers,omitempty"`
	Budget       string    `json:"budget,omitempty"`
	Interests    []string  `json:"interests,omitempty"`

	Extra map[string]any `json:"-"`
}

var knownInfoKeys = func() map[string]bool {
	keys := make(map[string]bool)
	t := reflect.TypeOf(GatheredInfo{})
	for i := range t.NumField() {
		name, _, _ := strings.Cut(t.Field(i).Tag.Get("json"), ",")
		if name != "" && name != "-" {
			keys[name] = true
		}
	}
	return keys
}()

// IsKnownInfoKey reports whether key maps to a typed GatheredInfo field.
func IsKnownInfoKey(key string) bool {
	return knownInfoKeys[key]
}

// Merge returns the result of folding update into g. Set fields in update
// overwrite; zero fields leave the existing value alone. Extra is merged key by key.
func (g GatheredInfo) Merge(update GatheredInfo) GatheredInfo {
	out := g.Clone()
	if update.Query != "" {
		out.Query = update.Query
	}
	if update.Location != nil {
		loc := *update.Location
		out.Location = &loc
	}
	if update.MedicineName != "" {
		out.MedicineName = update.MedicineName
	}
	if update.Quantity != "" {
		out.Quantity = update.Quantity
	}
	if update.Destination != "" {
		out.Destination = update.Destination
	}
	if update.Origin != "" {
		out.Origin = update.Origin
	}
	if update.StartDate != "" {
		out.StartDate = update.StartDate
	}
	if update.EndDate != "" {
		out.EndDate = update.EndDate
	}
	if update.Travelers != 0 {
		out.Travelers = update.Travelers
	}
	if update.Budget != "" {
		out.Budget = update.Budget
	}
	if len(update.Interests) > 0 {
		out.Interests = slices.Clone(update.Interests)
	}
	if len(update.Extra) > 0 {
		if out.Extra == nil {
			out.Extra = make(map[string]any, len(update.Extra))
		}
		maps.Copy(out.Extra, update.Extra)
	}
	return out
}

// Clone returns a copy that shares no mutable containers with g.
// Values inside Extra are copied shallowly.
func (g GatheredInfo) Clone() GatheredInfo {
	out := g
	if g.Location != nil {
		loc := *g.Location
		out.Location = &loc
	}
	out.Interests = slices.Clone(g.Interests)
	if g.Extra != nil {
		out.Extra = maps.Clone(g.Extra)
	}
	return out
}

// Has reports whether key is present with a non-empty value.
func (g GatheredInfo) Has(key string) bool {
	v, ok := g.ToMap()[key]
	if !ok || v == nil {
		return false
	}
	if s, isStr := v.(string); isStr {
		return strings.TrimSpace(s) != ""
	}
	return true
}

// Missing returns the subset of keys that are not present.
func (g GatheredInfo) Missing(keys ...string) []string {
	var out []string
	for _, k := range keys {
		if !g.Has(k) {
			out = append(out, k)
		}
	}
	return out
}

// ToMap flattens the typed fields and Extra into one map. Typed fields win
// over Extra entries with the same key.
func (g GatheredInfo) ToMap() map[string]any {
	out := make(map[string]any, len(g.Extra)+len(knownInfoKeys))
	for k, v := range g.Extra {
		if !knownInfoKeys[k] {
			out[k] = v
		}
	}
	set := func(k string, v any, present bool) {
		if present {
			out[k] = v
		}
	}
	set("query", g.Query, g.Query != "")
	set("location", g.Location, g.Location != nil)
	set("medicineName", g.MedicineName, g.MedicineName != "")
	set("quantity", g.Quantity, g.Quantity != "")
	set("destination", g.Destination, g.Destination != "")
	set("origin", g.Origin, g.Origin != "")
	set("startDate", g.StartDate, g.StartDate != "")
	set("endDate", g.EndDate, g.EndDate != "")
	set("travelers", g.Travelers, g.Travelers != 0)
	set("budget", g.Budget, g.Budget != "")
	set("interests", g.Interests, len(g.Interests) > 0)
	return out
}

// InfoFromMap builds a GatheredInfo from a loosely typed map such as an LLM
// extraction result. Values are coerced where reasonable ("2" travelers,
// a bare string location); unknown or null keys are kept in Extra, empty
// values are dropped.
func InfoFromMap(m map[string]any) (GatheredInfo, error) {
	known := make(map[string]any)
	var info GatheredInfo
	for k, v := range m {
		if v == nil {
			continue
		}
		if s, ok := v.(string); ok && strings.TrimSpace(s) == "" {
			continue
		}
		if knownInfoKeys[k] {
			known[k] = v
			continue
		}
		if info.Extra == nil {
			info.Extra = make(map[string]any)
		}
		info.Extra[k] = v
	}

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		DecodeHook:       locationHook,
		Result:           &info,
	})
	if err != nil {
		return GatheredInfo{}, err
	}
	if err := dec.Decode(known); err != nil {
		return GatheredInfo{}, fmt.Errorf("decode gathered info: %w", err)
	}
	return info, nil
}

func locationHook(from reflect.Type, to reflect.Type, data any) (any, error) {
	if to != reflect.TypeOf(Location{}) {
		return data, nil
	}
	if from.Kind() == reflect.String {
		return map[string]any{"address": data}, nil
	}
	if loc, ok := data.(*Location); ok && loc != nil {
		return *loc, nil
	}
	return data, nil
}

// MarshalJSON writes the flat representation.
func (g GatheredInfo) MarshalJSON() ([]byte, error) {
	return json.Marshal(g.ToMap())
}

// UnmarshalJSON reads the flat representation.
func (g *GatheredInfo) UnmarshalJSON(data []byte) error {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	info, err := InfoFromMap(m)
	if err != nil {
		return err
	}
	*g = info
	return nil
}
