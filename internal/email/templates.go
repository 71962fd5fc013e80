package email

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
)

//go:embed templates/*.html
var templateFS embed.FS

type baseEmailData struct {
	Title      string
	Heading    string
	Subheading string
}

type leadAssignedEmailData struct {
	baseEmailData
	AgentName     string
	LeadUID       string
	Source        string
	TotalAssigned int
}

// ReportRow is one label/value line in the daily report mail body.
type ReportRow struct {
	Label string
	Value string
}

type dailyReportEmailData struct {
	baseEmailData
	ReportDate  string
	Rows        []ReportRow
	DownloadURL string
}

func renderEmailTemplate(name string, data any) (string, error) {
	templates := []string{"templates/base.html", "templates/" + name}
	tmpl, err := template.New("base.html").ParseFS(templateFS, templates...)
	if err != nil {
		return "", fmt.Errorf("parse email template %s: %w", name, err)
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "email", data); err != nil {
		return "", fmt.Errorf("execute email template %s: %w", name, err)
	}
	return buf.String(), nil
}
