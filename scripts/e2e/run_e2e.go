// Package main runs E2E scenarios against a live booking API.
//
// It drives the session endpoints the booking widget uses: provider load,
// service/date/time selection, contact entry, submission and confirmation.
//
// Usage:
//
//	API_BASE_URL=... PROVIDER_ID=... go run scripts/e2e/run_e2e.go [scenario-name]
//	SESSION_JWT_SECRET=... API_BASE_URL=... go run scripts/e2e/run_e2e.go happy-path
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	daysAhead   = 7
	testPatient = "E2E Patient"
	testPhone   = "+15005550002"
)

var (
	apiBase    string
	providerID string
	token      string
	httpClient = &http.Client{Timeout: 20 * time.Second}
)

// ---------------------------------------------------------------------------
// Scenario definition
// ---------------------------------------------------------------------------

type scenario struct {
	Name string
	Fn   func(t *T)
}

// T is a lightweight test context for a single scenario.
type T struct {
	passed int
	failed int
	name   string
}

func (t *T) check(name string, ok bool) {
	if ok {
		fmt.Printf("    PASS: %s\n", name)
		t.passed++
	} else {
		fmt.Printf("    FAIL: %s\n", name)
		t.failed++
	}
}

func (t *T) fatalf(format string, args ...any) {
	fmt.Printf("    FATAL: "+format+"\n", args...)
	t.failed++
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

type view struct {
	State string `json:"state"`
	Draft struct {
		ServiceID string `json:"service_id"`
		Date      string `json:"date"`
		Time      string `json:"time"`
	} `json:"draft"`
	Slots    []string `json:"slots"`
	Provider *struct {
		Services []struct {
			ID string `json:"id"`
		} `json:"services"`
	} `json:"provider"`
	CanSubmit bool     `json:"can_submit"`
	Missing   []string `json:"missing"`
}

type envelope struct {
	SessionID string   `json:"session_id"`
	View      view     `json:"view"`
	Error     string   `json:"error"`
	Missing   []string `json:"missing"`
	Reference string   `json:"reference"`
}

func call(method, path string, body any) (int, envelope, error) {
	var rdr io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return 0, envelope{}, err
		}
		rdr = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, apiBase+path, rdr)
	if err != nil {
		return 0, envelope{}, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return 0, envelope{}, err
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	var out envelope
	if len(raw) > 0 && strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(raw, &out); err != nil {
			return resp.StatusCode, out, fmt.Errorf("decode %s %s: %w", method, path, err)
		}
	}
	return resp.StatusCode, out, nil
}

func createSession(t *T) (string, bool) {
	status, out, err := call(http.MethodPost, "/v1/sessions", map[string]string{"provider_id": providerID})
	if err != nil || status != http.StatusCreated {
		t.fatalf("create session: status=%d err=%v body=%s", status, err, out.Error)
		return "", false
	}
	settledView, ok := settle(t, out.SessionID)
	if !ok {
		return "", false
	}
	t.check("provider loaded", settledView.State == "Ready")
	return out.SessionID, settledView.State == "Ready"
}

func settle(t *T, id string) (view, bool) {
	status, out, err := call(http.MethodGet, "/v1/sessions/"+id+"?wait=1", nil)
	if err != nil || status != http.StatusOK {
		t.fatalf("get session: status=%d err=%v", status, err)
		return view{}, false
	}
	return out.View, true
}

// firstDateWithSlots walks forward from tomorrow until the provider has an
// opening for serviceID.
func firstDateWithSlots(t *T, id string) (string, view, bool) {
	for i := 1; i <= daysAhead; i++ {
		date := time.Now().AddDate(0, 0, i).Format("2006-01-02")
		if status, out, err := call(http.MethodPut, "/v1/sessions/"+id+"/date", map[string]string{"date": date}); err != nil || status != http.StatusOK {
			t.fatalf("select date %s: status=%d err=%v body=%s", date, status, err, out.Error)
			return "", view{}, false
		}
		v, ok := settle(t, id)
		if !ok {
			return "", view{}, false
		}
		if v.State == "SlotsReady" {
			return date, v, true
		}
	}
	t.fatalf("no availability in the next %d days", daysAhead)
	return "", view{}, false
}

func generateToken(secret string) (string, error) {
	claims := jwt.RegisteredClaims{
		Subject:   "e2e-runner",
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func setup() error {
	apiBase = strings.TrimRight(os.Getenv("API_BASE_URL"), "/")
	if apiBase == "" {
		apiBase = "http://localhost:8080"
	}
	providerID = os.Getenv("PROVIDER_ID")
	if providerID == "" {
		return fmt.Errorf("PROVIDER_ID is required")
	}
	if secret := os.Getenv("SESSION_JWT_SECRET"); secret != "" {
		signed, err := generateToken(secret)
		if err != nil {
			return fmt.Errorf("sign token: %w", err)
		}
		token = signed
	}
	return nil
}

// ---------------------------------------------------------------------------
// Scenarios
// ---------------------------------------------------------------------------

func scenarioHappyPath(t *T) {
	id, ok := createSession(t)
	if !ok {
		return
	}
	defer call(http.MethodDelete, "/v1/sessions/"+id, nil)

	_, loaded, _ := call(http.MethodGet, "/v1/sessions/"+id, nil)
	if loaded.View.Provider == nil || len(loaded.View.Provider.Services) == 0 {
		t.fatalf("provider offers no services")
		return
	}
	service := loaded.View.Provider.Services[0].ID
	status, _, _ := call(http.MethodPut, "/v1/sessions/"+id+"/service", map[string]string{"service_id": service})
	t.check("service selected", status == http.StatusOK)

	date, v, ok := firstDateWithSlots(t, id)
	if !ok {
		return
	}
	t.check("slots listed for "+date, len(v.Slots) > 0)

	status, _, _ = call(http.MethodPut, "/v1/sessions/"+id+"/time", map[string]string{"time": v.Slots[0]})
	t.check("time selected", status == http.StatusOK)

	status, out, _ := call(http.MethodPatch, "/v1/sessions/"+id+"/contact", map[string]string{
		"patient_name":  testPatient,
		"patient_phone": testPhone,
	})
	t.check("contact saved", status == http.StatusOK)
	t.check("submit enabled", out.View.CanSubmit)

	status, out, err := call(http.MethodPost, "/v1/sessions/"+id+"/submit", nil)
	if err != nil || status != http.StatusOK {
		t.fatalf("submit: status=%d err=%v body=%s", status, err, out.Error)
		return
	}
	t.check("booking reference returned", out.Reference != "")

	status, _, _ = call(http.MethodGet, "/v1/sessions/"+id+"/confirmation", nil)
	t.check("confirmation rendered", status == http.StatusOK)

	status, _, _ = call(http.MethodPatch, "/v1/sessions/"+id+"/contact", map[string]string{"notes": "late"})
	t.check("confirmed booking is frozen", status == http.StatusConflict)
}

func scenarioSubmitBlocked(t *T) {
	id, ok := createSession(t)
	if !ok {
		return
	}
	defer call(http.MethodDelete, "/v1/sessions/"+id, nil)

	status, out, _ := call(http.MethodPost, "/v1/sessions/"+id+"/submit", nil)
	t.check("submit rejected with 422", status == http.StatusUnprocessableEntity)
	t.check("missing fields reported", len(out.Missing) == 5)
}

func scenarioDateChangeClearsTime(t *T) {
	id, ok := createSession(t)
	if !ok {
		return
	}
	defer call(http.MethodDelete, "/v1/sessions/"+id, nil)

	date, v, ok := firstDateWithSlots(t, id)
	if !ok {
		return
	}
	if status, _, _ := call(http.MethodPut, "/v1/sessions/"+id+"/time", map[string]string{"time": v.Slots[0]}); status != http.StatusOK {
		t.fatalf("select time on %s failed: %d", date, status)
		return
	}
	next, _ := time.Parse("2006-01-02", date)
	status, out, _ := call(http.MethodPut, "/v1/sessions/"+id+"/date", map[string]string{"date": next.AddDate(0, 0, 1).Format("2006-01-02")})
	t.check("date changed", status == http.StatusOK)
	t.check("time cleared immediately", out.View.Draft.Time == "")
}

func scenarioPastDate(t *T) {
	id, ok := createSession(t)
	if !ok {
		return
	}
	defer call(http.MethodDelete, "/v1/sessions/"+id, nil)

	yesterday := time.Now().AddDate(0, 0, -2).Format("2006-01-02")
	status, _, _ := call(http.MethodPut, "/v1/sessions/"+id+"/date", map[string]string{"date": yesterday})
	t.check("past date rejected", status == http.StatusUnprocessableEntity)
}

func main() {
	if err := setup(); err != nil {
		fmt.Fprintf(os.Stderr, "setup: %v\n", err)
		os.Exit(2)
	}

	scenarios := []scenario{
		{"happy-path", scenarioHappyPath},
		{"submit-blocked", scenarioSubmitBlocked},
		{"date-change", scenarioDateChangeClearsTime},
		{"past-date", scenarioPastDate},
	}

	filter := ""
	if len(os.Args) > 1 {
		filter = os.Args[1]
	}

	totalPassed, totalFailed := 0, 0
	for _, sc := range scenarios {
		if filter != "" && sc.Name != filter {
			continue
		}
		fmt.Printf("\n=== %s ===\n", sc.Name)
		t := &T{name: sc.Name}
		sc.Fn(t)
		totalPassed += t.passed
		totalFailed += t.failed
	}

	fmt.Printf("\n%d passed, %d failed\n", totalPassed, totalFailed)
	if totalFailed > 0 {
		os.Exit(1)
	}
}
