package sessions

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/wolfman30/medspa-booking/internal/booking"
	httpmiddleware "github.com/wolfman30/medspa-booking/internal/http/middleware"
	"github.com/wolfman30/medspa-booking/internal/workflow"
	"github.com/wolfman30/medspa-booking/pkg/logging"
)

const maxWait = 5 * time.Second

var errInvalidEmail = errors.New("patient_email must be a valid email")

// Handler serves the booking session API.
type Handler struct {
	manager   *Manager
	presenter *workflow.Presenter
	logger    *logging.Logger
	validate  *validator.Validate
}

func NewHandler(manager *Manager, presenter *workflow.Presenter, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	if presenter == nil {
		presenter = workflow.NewPresenter("")
	}
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &Handler{manager: manager, presenter: presenter, logger: logger, validate: v}
}

// Routes mounts under /v1/sessions.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.CreateSession)
	r.Route("/{sessionID}", func(r chi.Router) {
		r.Get("/", h.GetSession)
		r.Delete("/", h.DeleteSession)
		r.Put("/provider", h.ChangeProvider)
		r.Put("/service", h.SelectService)
		r.Put("/date", h.SelectDate)
		r.Put("/time", h.SelectTime)
		r.Patch("/contact", h.UpdateContact)
		r.Post("/slots/refresh", h.RefreshSlots)
		r.Post("/submit", h.Submit)
		r.Get("/confirmation", h.Confirmation)
		r.Get("/events", h.Events)
	})
	return r
}

type createSessionRequest struct {
	ProviderID string `json:"provider_id" validate:"required"`
}

type sessionResponse struct {
	SessionID string        `json:"session_id"`
	View      workflow.View `json:"view"`
}

type providerRequest struct {
	ProviderID string `json:"provider_id" validate:"required"`
}

type serviceRequest struct {
	ServiceID string `json:"service_id" validate:"required"`
}

type dateRequest struct {
	Date string `json:"date" validate:"required,datetime=2006-01-02"`
}

type timeRequest struct {
	Time string `json:"time" validate:"required"`
}

// contactRequest only touches the fields that are present.
type contactRequest struct {
	PatientName  *string `json:"patient_name"`
	PatientPhone *string `json:"patient_phone"`
	PatientEmail *string `json:"patient_email"`
	Notes        *string `json:"notes" validate:"omitempty,max=2000"`
}

type errorResponse struct {
	Error   string   `json:"error"`
	Missing []string `json:"missing,omitempty"`
}

func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if !h.decode(w, r, &req) {
		return
	}
	s, err := h.manager.Create(req.ProviderID, httpmiddleware.ActorFromContext(r.Context()))
	if err != nil {
		h.writeError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusCreated, sessionResponse{SessionID: s.ID, View: s.Controller.View()})
}

// GetSession returns the view. With ?wait=1 it first waits, bounded, for any
// pending load, slot query or submission to settle.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	view := s.Controller.View()
	if wait := r.URL.Query().Get("wait"); wait == "1" || wait == "true" {
		ctx, cancel := context.WithTimeout(r.Context(), maxWait)
		defer cancel()
		view, _ = s.Controller.Await(ctx, settled)
	}
	writeJSON(w, http.StatusOK, sessionResponse{SessionID: s.ID, View: view})
}

func (h *Handler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := h.manager.Delete(chi.URLParam(r, "sessionID")); err != nil {
		h.writeError(w, err, nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ChangeProvider(w http.ResponseWriter, r *http.Request) {
	var req providerRequest
	h.mutate(w, r, &req, func(c *workflow.Controller) error { return c.ChangeProvider(req.ProviderID) })
}

func (h *Handler) SelectService(w http.ResponseWriter, r *http.Request) {
	var req serviceRequest
	h.mutate(w, r, &req, func(c *workflow.Controller) error { return c.SelectService(req.ServiceID) })
}

func (h *Handler) SelectDate(w http.ResponseWriter, r *http.Request) {
	var req dateRequest
	h.mutate(w, r, &req, func(c *workflow.Controller) error {
		d, err := booking.ParseDate(req.Date)
		if err != nil {
			return workflow.ErrInvalidDate
		}
		return c.SelectDate(d)
	})
}

func (h *Handler) SelectTime(w http.ResponseWriter, r *http.Request) {
	var req timeRequest
	h.mutate(w, r, &req, func(c *workflow.Controller) error { return c.SelectTime(req.Time) })
}

func (h *Handler) UpdateContact(w http.ResponseWriter, r *http.Request) {
	var req contactRequest
	h.mutate(w, r, &req, func(c *workflow.Controller) error {
		if req.PatientEmail != nil {
			if err := h.validate.Var(*req.PatientEmail, "omitempty,email"); err != nil {
				return errInvalidEmail
			}
		}
		if req.PatientName != nil {
			if err := c.SetPatientName(*req.PatientName); err != nil {
				return err
			}
		}
		if req.PatientPhone != nil {
			if err := c.SetPatientPhone(*req.PatientPhone); err != nil {
				return err
			}
		}
		if req.PatientEmail != nil {
			if err := c.SetPatientEmail(*req.PatientEmail); err != nil {
				return err
			}
		}
		if req.Notes != nil {
			return c.SetNotes(*req.Notes)
		}
		return nil
	})
}

func (h *Handler) RefreshSlots(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, nil, func(c *workflow.Controller) error { return c.RefreshSlots() })
}

func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	confirmed, err := s.Controller.Submit(r.Context())
	if err != nil {
		h.writeError(w, err, s.Controller)
		return
	}
	writeJSON(w, http.StatusOK, confirmed)
}

// Confirmation renders the frozen booking as HTML or plain text.
func (h *Handler) Confirmation(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	confirmed, ok := s.Controller.Confirmation()
	if !ok {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "booking not confirmed"})
		return
	}

	var err error
	if strings.Contains(r.Header.Get("Accept"), "text/html") {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		err = h.presenter.RenderHTML(w, confirmed)
	} else {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		err = h.presenter.RenderText(w, confirmed)
	}
	if err != nil {
		h.logger.Error("render confirmation failed", "session_id", s.ID, "error", err)
	}
}

func (h *Handler) mutate(w http.ResponseWriter, r *http.Request, body any, apply func(*workflow.Controller) error) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	if body != nil && !h.decode(w, r, body) {
		return
	}
	if err := apply(s.Controller); err != nil {
		h.writeError(w, err, s.Controller)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{SessionID: s.ID, View: s.Controller.View()})
}

func (h *Handler) session(w http.ResponseWriter, r *http.Request) (*Session, bool) {
	s, err := h.manager.Get(chi.URLParam(r, "sessionID"))
	if err != nil {
		h.writeError(w, err, nil)
		return nil, false
	}
	return s, true
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: validationMessage(err)})
		return false
	}
	return true
}

func (h *Handler) writeError(w http.ResponseWriter, err error, c *workflow.Controller) {
	var subErr *workflow.SubmissionError
	switch {
	case errors.Is(err, ErrSessionNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "session not found"})
	case errors.Is(err, ErrMissingProvider), errors.Is(err, errInvalidEmail):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: err.Error()})
	case errors.Is(err, workflow.ErrSubmitBlocked):
		resp := errorResponse{Error: err.Error()}
		if c != nil {
			resp.Missing = c.View().Missing
		}
		writeJSON(w, http.StatusUnprocessableEntity, resp)
	case errors.Is(err, workflow.ErrDateInPast),
		errors.Is(err, workflow.ErrInvalidDate),
		errors.Is(err, workflow.ErrSlotUnavailable),
		errors.Is(err, workflow.ErrUnknownService):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: err.Error()})
	case errors.Is(err, workflow.ErrSubmissionInFlight),
		errors.Is(err, workflow.ErrWorkflowFinished),
		errors.Is(err, workflow.ErrNotReady):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
	case errors.Is(err, workflow.ErrWorkflowClosed):
		writeJSON(w, http.StatusGone, errorResponse{Error: err.Error()})
	case errors.As(err, &subErr):
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: "booking could not be completed, please try again"})
	default:
		h.logger.Error("booking session request failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

// settled is true once nothing the visitor is waiting on is still in flight.
func settled(v workflow.View) bool {
	switch v.State {
	case workflow.Loading, workflow.SlotsLoading, workflow.Submitting:
		return false
	}
	return true
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "invalid request"
	}
	fe := verrs[0]
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "datetime":
		return field + " must be YYYY-MM-DD"
	case "email":
		return field + " must be a valid email"
	default:
		return field + " is invalid"
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
