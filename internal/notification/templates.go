package notification

import (
	"bytes"
	"fmt"
	"text/template"

	"github.com/civic-complaints/platform/internal/complaint/domain"
)

var submittedBody = template.Must(template.New("submitted").Parse(`Dear {{.CitizenName}},

We have received your complaint "{{.Subject}}".

Your tracking code is {{.TrackingCode}}. Use it to follow the progress of
your complaint at {{.TrackURL}}.

This message was sent automatically, please do not reply.
`))

var finalStatusBody = template.Must(template.New("final").Parse(`Dear {{.CitizenName}},

Your complaint "{{.Subject}}" ({{.TrackingCode}}) has been {{.StatusName}}.
{{if .Note}}
Note from the agency: {{.Note}}
{{end}}
The full history is available at {{.TrackURL}}.

This message was sent automatically, please do not reply.
`))

type messageData struct {
	CitizenName  string
	Subject      string
	TrackingCode string
	StatusName   string
	Note         string
	TrackURL     string
}

// composeMessage builds the citizen email for a complaint event. ok is false
// for events citizens are not told about.
func composeMessage(eventType string, e domain.ComplaintEvent, trackBaseURL string) (subject, body string, ok bool, err error) {
	data := messageData{
		CitizenName:  e.CitizenName,
		Subject:      e.Subject,
		TrackingCode: e.TrackingCode.String(),
		TrackURL:     trackBaseURL + e.TrackingCode.String(),
	}

	var tmpl *template.Template
	switch {
	case eventType == domain.EventComplaintSubmitted:
		subject = fmt.Sprintf("Complaint received: %s", e.TrackingCode)
		tmpl = submittedBody
	case eventType == domain.EventComplaintStatusChanged && e.Status.IsTerminal():
		data.StatusName = lowerStatus(e.Status)
		data.Note = e.History.Metadata
		subject = fmt.Sprintf("Complaint %s: %s", e.TrackingCode, e.Status.DisplayName())
		tmpl = finalStatusBody
	default:
		return "", "", false, nil
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", "", false, err
	}
	return subject, buf.String(), true, nil
}

func lowerStatus(s domain.Status) string {
	switch s {
	case domain.StatusResolved:
		return "resolved"
	case domain.StatusClosed:
		return "closed"
	case domain.StatusRejected:
		return "rejected"
	}
	return s.DisplayName()
}
