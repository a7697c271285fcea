package workflow

import (
	"fmt"
	"time"

	"github.com/wolfman30/medspa-booking/internal/booking"
)

// State is a step of the booking state machine.
type State int

const (
	Loading State = iota
	Failed
	Ready
	SlotsLoading
	SlotsReady
	SlotsEmpty
	Submitting
	Confirmed
)

var stateNames = [...]string{
	Loading:      "Loading",
	Failed:       "Failed",
	Ready:        "Ready",
	SlotsLoading: "SlotsLoading",
	SlotsReady:   "SlotsReady",
	SlotsEmpty:   "SlotsEmpty",
	Submitting:   "Submitting",
	Confirmed:    "Confirmed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("State(%d)", int(s))
	}
	return stateNames[s]
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// submittable lists the states Submit may start from.
func (s State) submittable() bool {
	return s == Ready || s == SlotsReady || s == SlotsEmpty
}

// FailureReason qualifies the Failed state.
type FailureReason string

const (
	ProviderNotFound    FailureReason = "provider_not_found"
	ProviderUnavailable FailureReason = "provider_unavailable"
)

// NoticeKind classifies transient, user-visible notifications.
type NoticeKind string

const (
	NoticeSlotFetchError   NoticeKind = "slot_fetch_error"
	NoticeSubmissionError  NoticeKind = "submission_error"
	NoticeProviderLoadFail NoticeKind = "provider_load_error"
	NoticeNoAvailability   NoticeKind = "no_availability"
)

// Notice is a non-blocking message for the visitor.
type Notice struct {
	Kind    NoticeKind `json:"kind"`
	Message string     `json:"message"`
	At      time.Time  `json:"at"`
}

// View is a consistent snapshot of a controller.
type View struct {
	State        State                     `json:"state"`
	Failure      FailureReason             `json:"failure,omitempty"`
	Provider     *booking.Provider         `json:"provider,omitempty"`
	Draft        booking.Draft             `json:"draft"`
	SlotsKnown   bool                      `json:"slots_known"`
	Slots        []string                  `json:"slots"`
	CanSubmit    bool                      `json:"can_submit"`
	Missing      []string                  `json:"missing,omitempty"`
	Notice       *Notice                   `json:"notice,omitempty"`
	Confirmation *booking.ConfirmedBooking `json:"confirmation,omitempty"`
}

// EventType names what changed.
type EventType string

const (
	EventStateChanged EventType = "state_changed"
	EventDraftUpdated EventType = "draft_updated"
	EventSlotsUpdated EventType = "slots_updated"
	EventNotice       EventType = "notice"
	EventConfirmed    EventType = "confirmed"
)

// Event is delivered to subscribers after every mutation.
type Event struct {
	Type EventType `json:"type"`
	View View      `json:"view"`
}
