// Package templates renders the HTML bodies of outgoing emails.
package templates

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"strings"
	"time"
)

//go:embed html/*.html
var files embed.FS

var pages = template.Must(template.ParseFS(files, "html/*.html"))

// Date and time layouts used in email bodies. Times are rendered in UTC.
const (
	dateLayout = "Monday, January 2, 2006"
	timeLayout = "3:04 PM MST"
)

// WorkshopEmail holds the values shown in workshop emails
type WorkshopEmail struct {
	RecipientName  string
	WorkshopTitle  string
	InstructorName string
	StartsAt       time.Time
	JoinURL        string
	SenderName     string
}

func (w WorkshopEmail) Date() string {
	return w.StartsAt.UTC().Format(dateLayout)
}

func (w WorkshopEmail) Time() string {
	return w.StartsAt.UTC().Format(timeLayout)
}

// Subject expands the {workshop_title} placeholder of a subject template.
func Subject(tmpl, workshopTitle string) string {
	return strings.ReplaceAll(tmpl, "{workshop_title}", workshopTitle)
}

// Reminder renders the reminder email body.
func Reminder(data WorkshopEmail) (string, error) {
	return render("reminder.html", data)
}

// RegistrationConfirmed renders the body sent after a successful checkout.
func RegistrationConfirmed(data WorkshopEmail) (string, error) {
	return render("registration.html", data)
}

// Test renders the body of the admin test email.
func Test(senderName string) (string, error) {
	return render("test.html", struct{ SenderName string }{senderName})
}

func render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := pages.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("failed to render %s: %w", name, err)
	}
	return buf.String(), nil
}
