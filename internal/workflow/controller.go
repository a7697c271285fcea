// Package workflow drives one booking attempt: provider load, service/date/time
// selection with asynchronous slot refresh, validation gating and submission.
package workflow

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/medspa-booking/internal/booking"
	"github.com/wolfman30/medspa-booking/internal/observability/metrics"
	"github.com/wolfman30/medspa-booking/pkg/logging"
)

const subscriberBuffer = 32

// Option configures a Controller.
type Option func(*Controller)

func WithLogger(logger *logging.Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func WithMetrics(m *metrics.WorkflowMetrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// WithClock overrides time.Now, used to decide what "today" is.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		if now != nil {
			c.now = now
		}
	}
}

// WithLocation sets the zone in which calendar days are evaluated.
func WithLocation(loc *time.Location) Option {
	return func(c *Controller) {
		if loc != nil {
			c.loc = loc
		}
	}
}

// WithActor records an already-authenticated actor on submissions.
func WithActor(actor string) Option {
	return func(c *Controller) { c.actor = strings.TrimSpace(actor) }
}

// Controller is the only stateful coordinator of a booking attempt. It owns
// the draft exclusively. All I/O runs on goroutines outside the lock; results
// come back through the staleness check before touching state.
type Controller struct {
	backend  booking.Backend
	slots    *SlotQueryClient
	executor *Executor
	logger   *logging.Logger
	metrics  *metrics.WorkflowMetrics
	now      func() time.Time
	loc      *time.Location
	actor    string

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu          sync.Mutex
	started     bool
	state       State
	failure     FailureReason
	provider    *booking.Provider
	providerSeq uint64
	draft       booking.Draft
	slotSet     *booking.SlotSet // nil while unknown
	notice      *Notice
	confirmed   *booking.ConfirmedBooking
	idemKey     string
	closed      bool
	subs        map[int]chan Event
	nextSub     int
	changed     chan struct{}
}

// New creates a controller for providerID. Call Start to load the provider.
func New(providerID string, backend booking.Backend, opts ...Option) *Controller {
	c := &Controller{
		backend: backend,
		logger:  logging.Default(),
		now:     time.Now,
		loc:     time.UTC,
		state:   Loading,
		draft:   booking.Draft{ProviderID: strings.TrimSpace(providerID)},
		subs:    make(map[int]chan Event),
		changed: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.ctx, c.cancel = context.WithCancel(context.Background())
	c.slots = NewSlotQueryClient(backend, c.logger, c.metrics)
	c.executor = NewExecutor(backend, c.logger, c.metrics, c.now)
	return c
}

// Start begins loading the provider. Calling it again is a no-op.
func (c *Controller) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started || c.closed {
		return
	}
	c.started = true
	c.beginProviderLoadLocked(c.draft.ProviderID)
}

// Reload retries a provider load that failed for a reason other than NotFound.
func (c *Controller) Reload() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrWorkflowClosed
	}
	if c.state != Failed || c.failure != ProviderUnavailable {
		return ErrNotReady
	}
	c.beginProviderLoadLocked(c.draft.ProviderID)
	return nil
}

// ChangeProvider switches the draft to another provider. The selected time is
// cleared and slots are refetched once the new profile is loaded.
func (c *Controller) ChangeProvider(providerID string) error {
	providerID = strings.TrimSpace(providerID)
	if providerID == "" {
		return ErrNotReady
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.guardLocked(false); err != nil {
		if !(errors.Is(err, ErrNotReady) && c.failure == ProviderUnavailable) {
			return err
		}
	}
	c.draft.ProviderID = providerID
	c.draft.Time = ""
	c.slotSet = nil
	c.notice = nil
	c.idemKey = ""
	c.slots.Invalidate()
	c.beginProviderLoadLocked(providerID)
	return nil
}

// SelectService sets the draft's service; it must be offered by the provider.
func (c *Controller) SelectService(serviceID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.guardLocked(true); err != nil {
		return err
	}
	if _, ok := c.provider.Service(serviceID); !ok {
		return ErrUnknownService
	}
	c.draft.ServiceID = serviceID
	c.touchLocked()
	c.emitLocked(EventDraftUpdated)
	return nil
}

// SelectDate sets the draft's date, clears the time and starts a slot query.
// Reselecting the current date is how a failed fetch is retried.
func (c *Controller) SelectDate(date booking.Date) error {
	if date.IsZero() {
		return ErrInvalidDate
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.guardLocked(true); err != nil {
		return err
	}
	if date.Before(booking.Today(c.now(), c.loc)) {
		return ErrDateInPast
	}
	c.draft.Date = date
	c.draft.Time = ""
	c.slotSet = nil
	c.notice = nil
	c.touchLocked()
	c.beginSlotFetchLocked()
	return nil
}

// SelectTime picks a start time from the loaded slot set.
func (c *Controller) SelectTime(hhmm string) error {
	t, ok := booking.NormalizeTime(hhmm)
	if !ok {
		return ErrSlotUnavailable
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.guardLocked(true); err != nil {
		return err
	}
	if c.state != SlotsReady || c.slotSet == nil || !c.slotSet.Contains(t) {
		return ErrSlotUnavailable
	}
	c.draft.Time = t
	c.touchLocked()
	c.emitLocked(EventDraftUpdated)
	return nil
}

// RefreshSlots re-queries availability for the current date without clearing
// the selected time; the time is only dropped if the fresh set lacks it.
func (c *Controller) RefreshSlots() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.guardLocked(true); err != nil {
		return err
	}
	if c.draft.Date.IsZero() {
		return ErrInvalidDate
	}
	if c.dateInPastLocked() {
		return ErrDateInPast
	}
	c.beginSlotFetchLocked()
	return nil
}

func (c *Controller) SetPatientName(v string) error {
	return c.editContact(func(d *booking.Draft) { d.PatientName = v })
}

func (c *Controller) SetPatientPhone(v string) error {
	return c.editContact(func(d *booking.Draft) { d.PatientPhone = v })
}

func (c *Controller) SetPatientEmail(v string) error {
	return c.editContact(func(d *booking.Draft) { d.PatientEmail = v })
}

func (c *Controller) SetNotes(v string) error {
	return c.editContact(func(d *booking.Draft) { d.Notes = v })
}

func (c *Controller) editContact(apply func(*booking.Draft)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.guardLocked(false); err != nil {
		return err
	}
	apply(&c.draft)
	c.touchLocked()
	c.emitLocked(EventDraftUpdated)
	return nil
}

// Submit books the draft. It returns ErrSubmitBlocked when the gate is closed,
// ErrSubmissionInFlight when another submission is running, and a
// *SubmissionError on backend failure, in which case the workflow goes back
// to the state it was in with the draft untouched.
func (c *Controller) Submit(ctx context.Context) (booking.ConfirmedBooking, error) {
	c.mu.Lock()
	if err := c.guardLocked(true); err != nil {
		c.mu.Unlock()
		return booking.ConfirmedBooking{}, err
	}
	if !c.state.submittable() || !CanSubmit(c.draft) {
		c.mu.Unlock()
		return booking.ConfirmedBooking{}, ErrSubmitBlocked
	}
	// The day may have rolled over since the date was picked.
	if c.dateInPastLocked() {
		c.mu.Unlock()
		return booking.ConfirmedBooking{}, ErrDateInPast
	}
	if c.idemKey == "" {
		c.idemKey = uuid.NewString()
	}
	prev := c.state
	draft := c.draft
	provider := c.provider
	opts := SubmitOptions{BookedBy: c.actor, IdempotencyKey: c.idemKey}
	c.notice = nil
	c.setStateLocked(Submitting)
	c.emitLocked(EventStateChanged)
	c.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(c.ctx, cancel)
	defer stop()

	confirmed, err := c.executor.Submit(ctx, provider, draft, opts)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return booking.ConfirmedBooking{}, ErrWorkflowClosed
	}
	if err != nil {
		c.setStateLocked(prev)
		c.notice = c.newNotice(NoticeSubmissionError, err.Error())
		c.emitLocked(EventNotice)
		return booking.ConfirmedBooking{}, err
	}
	c.confirmed = &confirmed
	c.slots.Invalidate()
	c.setStateLocked(Confirmed)
	c.emitLocked(EventConfirmed)
	return confirmed, nil
}

// Confirmation returns the frozen snapshot once the workflow is Confirmed.
func (c *Controller) Confirmation() (booking.ConfirmedBooking, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.confirmed == nil {
		return booking.ConfirmedBooking{}, false
	}
	return *c.confirmed, true
}

// View returns a consistent snapshot.
func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewLocked()
}

// Subscribe returns a channel receiving an Event after every change. Slow
// subscribers lose events rather than block the workflow. The channel is
// closed by the returned cancel func or by Close.
func (c *Controller) Subscribe() (<-chan Event, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch := make(chan Event, subscriberBuffer)
	if c.closed {
		close(ch)
		return ch, func() {}
	}
	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch
	return ch, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if sub, ok := c.subs[id]; ok {
			delete(c.subs, id)
			close(sub)
		}
	}
}

// Await blocks until pred holds for the current view, ctx ends, or the
// workflow is closed.
func (c *Controller) Await(ctx context.Context, pred func(View) bool) (View, error) {
	for {
		c.mu.Lock()
		v := c.viewLocked()
		changed := c.changed
		closed := c.closed
		c.mu.Unlock()

		if pred(v) {
			return v, nil
		}
		if closed {
			return v, ErrWorkflowClosed
		}
		select {
		case <-ctx.Done():
			return v, ctx.Err()
		case <-changed:
		}
	}
}

// Close tears the workflow down. Outstanding requests are cancelled and any
// response that still arrives is ignored.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.cancel()
	c.slots.Close()
	for id, ch := range c.subs {
		delete(c.subs, id)
		close(ch)
	}
	close(c.changed)
	c.logger.Debug("booking workflow closed", "provider_id", c.draft.ProviderID, "state", c.state.String())
}

func (c *Controller) beginProviderLoadLocked(providerID string) {
	c.providerSeq++
	seq := c.providerSeq
	c.provider = nil
	c.failure = ""
	c.setStateLocked(Loading)
	c.emitLocked(EventStateChanged)

	c.wg.Add(1)
	go c.loadProvider(seq, providerID)
}

func (c *Controller) loadProvider(seq uint64, providerID string) {
	defer c.wg.Done()
	p, err := c.backend.GetProvider(c.ctx, providerID)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || seq != c.providerSeq {
		return
	}
	if err != nil {
		c.failure = ProviderUnavailable
		if errors.Is(err, booking.ErrProviderNotFound) {
			c.failure = ProviderNotFound
		} else {
			c.notice = c.newNotice(NoticeProviderLoadFail, err.Error())
		}
		c.logger.Warn("provider load failed", "provider_id", providerID, "error", err)
		c.setStateLocked(Failed)
		c.emitLocked(EventStateChanged)
		return
	}

	c.provider = p.Clone()
	if _, ok := c.provider.Service(c.draft.ServiceID); !ok {
		c.draft.ServiceID = ""
	}
	if c.dateInPastLocked() {
		c.draft.Date = booking.Date{}
		c.draft.Time = ""
		c.touchLocked()
	}
	if !c.draft.Date.IsZero() {
		c.beginSlotFetchLocked()
		return
	}
	c.setStateLocked(Ready)
	c.emitLocked(EventStateChanged)
}

func (c *Controller) beginSlotFetchLocked() {
	q := c.slots.Issue(c.draft.SlotKey())
	c.setStateLocked(SlotsLoading)
	c.emitLocked(EventStateChanged)

	c.wg.Add(1)
	go c.fetchSlots(q)
}

func (c *Controller) fetchSlots(q SlotQuery) {
	defer c.wg.Done()
	set, err := c.slots.Fetch(c.ctx, q)

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.slots.Resolve(q, c.draft.SlotKey(), err) {
		return
	}
	if err != nil {
		// Unknown, not empty. The selected time stays.
		c.slotSet = nil
		c.notice = c.newNotice(NoticeSlotFetchError, "could not load available times, please try again")
		c.logger.Warn("slot fetch failed", "provider_id", q.Key.ProviderID, "date", q.Key.Date.String(), "error", err)
		c.setStateLocked(Ready)
		c.emitLocked(EventNotice)
		return
	}

	c.slotSet = &set
	if c.draft.Time != "" && !set.Contains(c.draft.Time) {
		c.draft.Time = ""
		c.idemKey = ""
	}
	if set.Empty() {
		c.notice = c.newNotice(NoticeNoAvailability, "no availability on this date")
		c.setStateLocked(SlotsEmpty)
	} else {
		c.notice = nil
		c.setStateLocked(SlotsReady)
	}
	c.emitLocked(EventSlotsUpdated)
}

// guardLocked rejects mutations the current state doesn't allow.
func (c *Controller) guardLocked(needProvider bool) error {
	switch {
	case c.closed:
		return ErrWorkflowClosed
	case c.state == Confirmed:
		return ErrWorkflowFinished
	case c.state == Submitting:
		return ErrSubmissionInFlight
	case c.state == Failed:
		return ErrNotReady
	case needProvider && c.provider == nil:
		return ErrNotReady
	}
	return nil
}

// dateInPastLocked reports whether the draft's date is before today in the
// controller's location. An unset date is never in the past.
func (c *Controller) dateInPastLocked() bool {
	return !c.draft.Date.IsZero() && c.draft.Date.Before(booking.Today(c.now(), c.loc))
}

// touchLocked is called after every draft edit: a changed draft gets a new
// idempotency key on its next submission.
func (c *Controller) touchLocked() {
	c.idemKey = ""
}

func (c *Controller) setStateLocked(next State) {
	if c.state == next {
		return
	}
	c.metrics.ObserveTransition(c.state.String(), next.String())
	c.logger.Debug("booking workflow transition",
		"provider_id", c.draft.ProviderID,
		"from", c.state.String(),
		"to", next.String(),
	)
	c.state = next
}

func (c *Controller) newNotice(kind NoticeKind, msg string) *Notice {
	return &Notice{Kind: kind, Message: msg, At: c.now().UTC()}
}

func (c *Controller) emitLocked(t EventType) {
	close(c.changed)
	c.changed = make(chan struct{})
	if len(c.subs) == 0 {
		return
	}
	evt := Event{Type: t, View: c.viewLocked()}
	for id, ch := range c.subs {
		select {
		case ch <- evt:
		default:
			c.logger.Warn("dropping workflow event for slow subscriber", "subscriber", id, "event", string(t))
		}
	}
}

func (c *Controller) viewLocked() View {
	v := View{
		State:     c.state,
		Failure:   c.failure,
		Provider:  c.provider.Clone(),
		Draft:     c.draft,
		Slots:     []string{},
		CanSubmit: CanSubmit(c.draft),
		Missing:   Missing(c.draft),
	}
	if c.slotSet != nil {
		v.SlotsKnown = true
		v.Slots = c.slotSet.Times()
	}
	if c.notice != nil {
		n := *c.notice
		v.Notice = &n
	}
	if c.confirmed != nil {
		cb := *c.confirmed
		v.Confirmation = &cb
	}
	return v
}
