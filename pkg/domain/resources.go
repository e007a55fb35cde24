package domain

// Pharmacy is a place discovered by a pharmacy search.
type Pharmacy struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Address  string  `json:"address,omitempty"`
	Phone    string  `json:"phone,omitempty"`
	Distance float64 `json:"distanceKm,omitempty"`
	Rating   float64 `json:"rating,omitempty"`
}

// CallResult is the outcome of phoning a pharmacy about stock.
type CallResult struct {
	PharmacyID   string `json:"pharmacyId"`
	PharmacyName string `json:"pharmacyName,omitempty"`
	InStock      bool   `json:"inStock"`
	Price        string `json:"price,omitempty"`
	Notes        string `json:"notes,omitempty"`
}

// Itinerary is a generated travel plan awaiting confirmation.
type Itinerary struct {
	Title   string         `json:"title"`
	Summary string         `json:"summary,omitempty"`
	Hotel   string         `json:"hotel,omitempty"`
	Days    []ItineraryDay `json:"days,omitempty"`
	Version int            `json:"version"`
}

// ItineraryDay lists the activities planned for one day.
type ItineraryDay struct {
	Day        int      `json:"day"`
	Title      string   `json:"title,omitempty"`
	Activities []string `json:"activities,omitempty"`
}

// Booking is a simulated reservation.
type Booking struct {
	ID        string `json:"id"`
	Kind      string `json:"kind"`
	Name      string `json:"name"`
	Reference string `json:"reference,omitempty"`
	Status    string `json:"status"`
}

// MergeByID accumulates incoming into existing, replacing entries whose key
// already exists in place and appending new ones in arrival order. Merging
// the same set twice yields the same result as merging it once.
func MergeByID[T any](existing, incoming []T, key func(T) string) []T {
	if len(incoming) == 0 {
		return existing
	}
	out := make([]T, len(existing), len(existing)+len(incoming))
	copy(out, existing)
	pos := make(map[string]int, len(out))
	for i, v := range out {
		pos[key(v)] = i
	}
	for _, v := range incoming {
		k := key(v)
		if i, ok := pos[k]; ok {
			out[i] = v
			continue
		}
		pos[k] = len(out)
		out = append(out, v)
	}
	return out
}

// AppendUnique appends incoming entries whose key is not yet present.
// The first occurrence of a key wins.
func AppendUnique[T any](existing, incoming []T, key func(T) string) []T {
	if len(incoming) == 0 {
		return existing
	}
	out := make([]T, len(existing), len(existing)+len(incoming))
	copy(out, existing)
	seen := make(map[string]bool, len(out))
	for _, v := range out {
		seen[key(v)] = true
	}
	for _, v := range incoming {
		k := key(v)
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, v)
	}
	return out
}

func pharmacyKey(p Pharmacy) string     { return p.ID }
func callResultKey(c CallResult) string { return c.PharmacyID }
func bookingKey(b Booking) string       { return b.ID }
