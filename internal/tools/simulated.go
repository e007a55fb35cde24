// Package tools provides the tools plans run: deterministic simulated domain
// tools, external processes declared in a YAML catalog, and a Locator backed
// by the geocoder.
package tools

import (
	"context"
	"fmt"
	"hash/fnv"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/aretw0/errand/pkg/domain"
	"github.com/aretw0/errand/pkg/registry"
	"github.com/google/uuid"
)

// Built-in tool names.
const (
	WebSearch      = "web_search"
	PharmacySearch = "pharmacy_search"
	PhoneCall      = "phone_call"
	Geocode        = "geocode"
	BookHotel      = "book_hotel"
)

// SearchHit is one web search result.
type SearchHit struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// SearchResult is the output of web_search.
type SearchResult struct {
	Query   string      `json:"query"`
	Results []SearchHit `json:"results"`
}

// PharmacyResult is the output of pharmacy_search.
type PharmacyResult struct {
	Location   string            `json:"location"`
	Pharmacies []domain.Pharmacy `json:"pharmacies"`
}

// Simulated answers every built-in tool with plausible data derived from
// its arguments. The same arguments always produce the same answer.
type Simulated struct {
	latency time.Duration
	newID   func() string
}

// SimOption configures Simulated.
type SimOption func(*Simulated)

// WithLatency makes every call wait d, or until the context ends.
func WithLatency(d time.Duration) SimOption {
	return func(s *Simulated) {
		s.latency = d
	}
}

// WithIDs overrides how booking ids are minted.
func WithIDs(fn func() string) SimOption {
	return func(s *Simulated) {
		s.newID = fn
	}
}

// NewSimulated creates the simulated tool set.
func NewSimulated(opts ...SimOption) *Simulated {
	s := &Simulated{newID: uuid.NewString}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register adds every simulated tool to reg.
func (s *Simulated) Register(reg *registry.Registry) error {
	specs := []struct {
		spec domain.Tool
		fn   registry.ToolFunction
	}{
		{webSearchSpec, registry.Typed(s.webSearch)},
		{pharmacySearchSpec, registry.Typed(s.pharmacySearch)},
		{phoneCallSpec, registry.Typed(s.phoneCall)},
		{geocodeSpec, registry.Typed(s.geocode)},
		{bookHotelSpec, registry.Typed(s.bookHotel)},
	}
	for _, t := range specs {
		if err := reg.Register(t.spec, t.fn); err != nil {
			return fmt.Errorf("register %s: %w", t.spec.Name, err)
		}
	}
	return nil
}

func schema(required []string, props map[string]string) map[string]any {
	properties := make(map[string]any, len(props))
	for name, typ := range props {
		properties[name] = map[string]any{"type": typ}
	}
	return map[string]any{
		"type":       "object",
		"properties": properties,
		"required":   required,
	}
}

var (
	webSearchSpec = domain.Tool{
		Name:        WebSearch,
		Description: "Search the web and return the top results.",
		Parameters:  schema([]string{"query"}, map[string]string{"query": "string", "limit": "integer"}),
	}
	pharmacySearchSpec = domain.Tool{
		Name:        PharmacySearch,
		Description: "Find pharmacies near a location.",
		Parameters:  schema([]string{"location"}, map[string]string{"location": "string", "medicineName": "string", "radiusKm": "number"}),
	}
	phoneCallSpec = domain.Tool{
		Name:        PhoneCall,
		Description: "Call a pharmacy and ask whether a medicine is in stock.",
		Parameters:  schema([]string{"pharmacyId", "medicine"}, map[string]string{"phone": "string", "pharmacyId": "string", "pharmacyName": "string", "medicine": "string"}),
	}
	geocodeSpec = domain.Tool{
		Name:        Geocode,
		Description: "Resolve an address or place name to coordinates.",
		Parameters:  schema([]string{"address"}, map[string]string{"address": "string"}),
	}
	bookHotelSpec = domain.Tool{
		Name:        BookHotel,
		Description: "Reserve a hotel for the trip.",
		Parameters:  schema([]string{"destination"}, map[string]string{"hotel": "string", "destination": "string", "checkIn": "string", "checkOut": "string", "guests": "integer"}),
	}
)

type webSearchArgs struct {
	Query string `json:"query"`
	Limit int    `json:"limit"`
}

func (s *Simulated) webSearch(ctx context.Context, args webSearchArgs) (any, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	limit := args.Limit
	if limit <= 0 || limit > 5 {
		limit = 3
	}
	r := seeded(args.Query)
	slug := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(args.Query)), " ", "-")
	out := SearchResult{Query: args.Query}
	for i := range limit {
		source := searchSources[r.IntN(len(searchSources))]
		out.Results = append(out.Results, SearchHit{
			Title:   fmt.Sprintf("%s: %s (%d)", source, args.Query, i+1),
			URL:     fmt.Sprintf("https://%s/%s-%d", source, slug, i+1),
			Snippet: fmt.Sprintf("An overview of %s with practical details and recent updates.", args.Query),
		})
	}
	return out, nil
}

type pharmacySearchArgs struct {
	Location     any     `json:"location"`
	MedicineName string  `json:"medicineName"`
	RadiusKm     float64 `json:"radiusKm"`
}

func (s *Simulated) pharmacySearch(ctx context.Context, args pharmacySearchArgs) (any, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	where := LocationText(args.Location)
	if where == "" {
		return domain.ToolErrorPayload{Error: "location is required"}, nil
	}
	radius := args.RadiusKm
	if radius <= 0 {
		radius = 5
	}
	r := seeded(where)
	out := PharmacyResult{Location: where}
	for i := range 3 {
		name := pharmacyNames[(r.IntN(len(pharmacyNames))+i)%len(pharmacyNames)]
		out.Pharmacies = append(out.Pharmacies, domain.Pharmacy{
			ID:       fmt.Sprintf("ph-%x-%d", hash(where), i+1),
			Name:     name,
			Address:  fmt.Sprintf("%d %s, %s", 10+r.IntN(190), streets[r.IntN(len(streets))], where),
			Phone:    fmt.Sprintf("+1 555 %04d", r.IntN(10000)),
			Distance: float64(int(radius*r.Float64()*10)) / 10,
			Rating:   float64(30+r.IntN(21)) / 10,
		})
	}
	return out, nil
}

type phoneCallArgs struct {
	Phone        string `json:"phone"`
	PharmacyID   string `json:"pharmacyId"`
	PharmacyName string `json:"pharmacyName"`
	Medicine     string `json:"medicine"`
}

func (s *Simulated) phoneCall(ctx context.Context, args phoneCallArgs) (any, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	if strings.TrimSpace(args.Phone) == "" {
		return domain.ToolErrorPayload{Error: fmt.Sprintf("no phone number for %s", args.PharmacyID), Success: domain.Ptr(false)}, nil
	}
	r := seeded(args.PharmacyID + "|" + strings.ToLower(args.Medicine))
	res := domain.CallResult{
		PharmacyID:   args.PharmacyID,
		PharmacyName: args.PharmacyName,
		InStock:      r.IntN(3) > 0,
	}
	if res.InStock {
		res.Price = fmt.Sprintf("$%d.%02d", 3+r.IntN(25), r.IntN(100))
		res.Notes = fmt.Sprintf("%s is available for pickup today.", args.Medicine)
	} else {
		res.Notes = fmt.Sprintf("%s is out of stock; expected in %d days.", args.Medicine, 1+r.IntN(5))
	}
	return res, nil
}

type geocodeArgs struct {
	Address string `json:"address"`
}

func (s *Simulated) geocode(ctx context.Context, args geocodeArgs) (any, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	return s.Resolve(args.Address), nil
}

// Resolve maps an address to stable pseudo coordinates.
func (s *Simulated) Resolve(address string) domain.Location {
	r := seeded(strings.ToLower(strings.TrimSpace(address)))
	city, _, _ := strings.Cut(address, ",")
	if i := strings.LastIndex(address, ","); i >= 0 {
		city = address[i+1:]
	}
	return domain.Location{
		Latitude:  float64(int((r.Float64()*140-70)*1e5)) / 1e5,
		Longitude: float64(int((r.Float64()*340-170)*1e5)) / 1e5,
		Address:   address,
		City:      strings.TrimSpace(city),
	}
}

type bookHotelArgs struct {
	Hotel       string `json:"hotel"`
	Destination string `json:"destination"`
	CheckIn     string `json:"checkIn"`
	CheckOut    string `json:"checkOut"`
	Guests      int    `json:"guests"`
}

func (s *Simulated) bookHotel(ctx context.Context, args bookHotelArgs) (any, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	hotel := args.Hotel
	if hotel == "" {
		hotel = fmt.Sprintf("Hotel %s Central", args.Destination)
	}
	r := seeded(hotel + "|" + args.CheckIn)
	return domain.Booking{
		ID:        s.newID(),
		Kind:      "hotel",
		Name:      hotel,
		Reference: fmt.Sprintf("HB-%06d", r.IntN(1000000)),
		Status:    "confirmed",
	}, nil
}

func (s *Simulated) wait(ctx context.Context) error {
	if s.latency <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(s.latency)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// LocationText renders a location argument that may arrive as a string, a
// decoded object or a domain.Location.
func LocationText(v any) string {
	switch loc := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(loc)
	case domain.Location:
		return loc.String()
	case *domain.Location:
		return loc.String()
	case map[string]any:
		for _, k := range []string{"address", "city"} {
			if s, ok := loc[k].(string); ok && s != "" {
				return s
			}
		}
		lat, _ := loc["lat"].(float64)
		lng, _ := loc["lng"].(float64)
		if lat != 0 || lng != 0 {
			return fmt.Sprintf("%.5f,%.5f", lat, lng)
		}
		return ""
	}
	return fmt.Sprint(v)
}

func hash(s string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return h.Sum64()
}

func seeded(s string) *rand.Rand {
	h := hash(s)
	return rand.New(rand.NewPCG(h, h>>7|1))
}

var (
	searchSources = []string{"wikipedia.org", "lonelyplanet.com", "timeout.com", "nhs.uk", "healthline.com", "tripadvisor.com"}
	pharmacyNames = []string{"Central Pharmacy", "Green Cross", "CityCare Chemist", "Riverside Pharmacy", "Health Point", "Corner Drugstore"}
	streets       = []string{"Main St", "Oak Avenue", "Market Square", "Harbor Road", "Station Lane"}
)
