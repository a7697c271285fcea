package workflow

import (
	"fmt"
	htmltemplate "html/template"
	"io"
	"strings"
	"text/template"

	"github.com/wolfman30/medspa-booking/internal/booking"
)

// Summary is the display form of a ConfirmedBooking.
type Summary struct {
	Reference string
	Provider  string
	Service   string
	Duration  string
	Price     string
	Date      string
	Time      string
	Patient   string
	Phone     string
	Email     string
	Notes     string
}

const summaryText = `Booking confirmed{{if .Reference}} ({{.Reference}}){{end}}
Provider: {{.Provider}}
Service:  {{.Service}} ({{.Duration}}, {{.Price}})
When:     {{.Date}} at {{.Time}}
Patient:  {{.Patient}} / {{.Phone}}{{if .Email}} / {{.Email}}{{end}}
{{- if .Notes}}
Notes:    {{.Notes}}{{end}}
`

const summaryHTML = `<section class="booking-confirmation">
  <h2>Booking confirmed</h2>
  {{if .Reference}}<p class="reference">Reference: {{.Reference}}</p>{{end}}
  <dl>
    <dt>Provider</dt><dd>{{.Provider}}</dd>
    <dt>Service</dt><dd>{{.Service}} ({{.Duration}}, {{.Price}})</dd>
    <dt>Date</dt><dd>{{.Date}}</dd>
    <dt>Time</dt><dd>{{.Time}}</dd>
    <dt>Patient</dt><dd>{{.Patient}}</dd>
    <dt>Phone</dt><dd>{{.Phone}}</dd>
    {{if .Email}}<dt>Email</dt><dd>{{.Email}}</dd>{{end}}
    {{if .Notes}}<dt>Notes</dt><dd>{{.Notes}}</dd>{{end}}
  </dl>
</section>
`

// Presenter renders confirmation snapshots. It only ever reads the
// ConfirmedBooking it is given, never a live draft.
type Presenter struct {
	text     *template.Template
	html     *htmltemplate.Template
	currency string
}

func NewPresenter(currency string) *Presenter {
	return &Presenter{
		text:     template.Must(template.New("summary").Parse(summaryText)),
		html:     htmltemplate.Must(htmltemplate.New("summary").Parse(summaryHTML)),
		currency: strings.TrimSpace(currency),
	}
}

// Summarize formats the snapshot fields for display.
func (p *Presenter) Summarize(c booking.ConfirmedBooking) Summary {
	date := c.Date.String()
	if !c.Date.IsZero() {
		date = c.Date.Timestamp().Format("Monday, 2 January 2006")
	}
	return Summary{
		Reference: c.Reference,
		Provider:  c.ProviderName,
		Service:   c.Service.Name,
		Duration:  fmt.Sprintf("%d min", c.Service.DurationMin),
		Price:     p.formatPrice(c.Service.Price),
		Date:      date,
		Time:      c.Time,
		Patient:   c.PatientName,
		Phone:     c.PatientPhone,
		Email:     c.PatientEmail,
		Notes:     c.Notes,
	}
}

func (p *Presenter) RenderText(w io.Writer, c booking.ConfirmedBooking) error {
	if err := p.text.Execute(w, p.Summarize(c)); err != nil {
		return fmt.Errorf("workflow: render confirmation: %w", err)
	}
	return nil
}

func (p *Presenter) RenderHTML(w io.Writer, c booking.ConfirmedBooking) error {
	if err := p.html.Execute(w, p.Summarize(c)); err != nil {
		return fmt.Errorf("workflow: render confirmation html: %w", err)
	}
	return nil
}

func (p *Presenter) formatPrice(v float64) string {
	amount := fmt.Sprintf("%.2f", v)
	if strings.HasSuffix(amount, ".00") {
		amount = strings.TrimSuffix(amount, ".00")
	}
	if p.currency == "" {
		return amount
	}
	return amount + " " + p.currency
}
