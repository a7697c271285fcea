package booking

import (
	"sort"
	"strings"
	"time"
)

// Service is one bookable offering of a provider.
type Service struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	DurationMin int     `json:"duration_min"`
	Price       float64 `json:"price"`
	Description string  `json:"description,omitempty"`
}

// Provider is the practitioner profile loaded once per booking session.
type Provider struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Specialty string    `json:"specialty,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	Email     string    `json:"email,omitempty"`
	Address   string    `json:"address,omitempty"`
	Bio       string    `json:"bio,omitempty"`
	PhotoURL  string    `json:"photo_url,omitempty"`
	Services  []Service `json:"services"`
}

// Service looks up one of the provider's services by id.
func (p *Provider) Service(id string) (Service, bool) {
	if p == nil {
		return Service{}, false
	}
	for _, s := range p.Services {
		if s.ID == id {
			return s, true
		}
	}
	return Service{}, false
}

// Clone returns a deep copy so callers can't mutate a loaded profile.
func (p *Provider) Clone() *Provider {
	if p == nil {
		return nil
	}
	cp := *p
	cp.Services = append([]Service(nil), p.Services...)
	return &cp
}

// SlotKey identifies the (provider, day) pair a slot set belongs to.
type SlotKey struct {
	ProviderID string
	Date       Date
}

func (k SlotKey) String() string { return k.ProviderID + "@" + k.Date.String() }

// SlotSet is the immutable list of start times available for one SlotKey.
// Times are "HH:MM", strictly ascending. An empty set means "no availability".
type SlotSet struct {
	key   SlotKey
	times []string
}

// NewSlotSet normalizes raw times into a SlotSet. Entries that don't parse as a
// time of day are returned in dropped instead of failing the whole set.
func NewSlotSet(key SlotKey, raw []string) (set SlotSet, dropped []string) {
	seen := make(map[string]struct{}, len(raw))
	times := make([]string, 0, len(raw))
	for _, r := range raw {
		t, ok := NormalizeTime(r)
		if !ok {
			dropped = append(dropped, r)
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		times = append(times, t)
	}
	sort.Strings(times)
	return SlotSet{key: key, times: times}, dropped
}

func (s SlotSet) Key() SlotKey { return s.key }

// Times returns a copy of the slot times.
func (s SlotSet) Times() []string {
	out := make([]string, len(s.times))
	copy(out, s.times)
	return out
}

func (s SlotSet) Len() int { return len(s.times) }

func (s SlotSet) Empty() bool { return len(s.times) == 0 }

func (s SlotSet) Contains(t string) bool {
	i := sort.SearchStrings(s.times, t)
	return i < len(s.times) && s.times[i] == t
}

// NormalizeTime turns "9:00" or "09:00" into "09:00".
func NormalizeTime(s string) (string, bool) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return "", false
	}
	return t.Format("15:04"), true
}

// Draft is the in-progress reservation assembled by the visitor.
// Empty strings and the zero Date mean "not chosen yet".
type Draft struct {
	ProviderID   string `json:"provider_id"`
	ServiceID    string `json:"service_id,omitempty"`
	Date         Date   `json:"date,omitempty"`
	Time         string `json:"time,omitempty"`
	PatientName  string `json:"patient_name"`
	PatientPhone string `json:"patient_phone"`
	PatientEmail string `json:"patient_email,omitempty"`
	Notes        string `json:"notes,omitempty"`
}

// SlotKey is the (provider, date) the draft currently points at.
func (d Draft) SlotKey() SlotKey {
	return SlotKey{ProviderID: d.ProviderID, Date: d.Date}
}

// ConfirmedBooking is the frozen result of a successful submission.
// It is passed around by value and never mutated.
type ConfirmedBooking struct {
	Reference    string    `json:"reference,omitempty"`
	ProviderID   string    `json:"provider_id"`
	ProviderName string    `json:"provider_name"`
	Service      Service   `json:"service"`
	Date         Date      `json:"date"`
	Time         string    `json:"time"`
	PatientName  string    `json:"patient_name"`
	PatientPhone string    `json:"patient_phone"`
	PatientEmail string    `json:"patient_email,omitempty"`
	Notes        string    `json:"notes,omitempty"`
	BookedBy     string    `json:"booked_by,omitempty"`
	ConfirmedAt  time.Time `json:"confirmed_at"`
}
