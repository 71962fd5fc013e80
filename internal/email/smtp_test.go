package email

import (
	"bytes"
	"strings"
	"testing"
)

type testSMTPConfig struct{}

func (testSMTPConfig) GetSMTPHost() string      { return "smtp.example.com" }
func (testSMTPConfig) GetSMTPPort() int         { return 587 }
func (testSMTPConfig) GetSMTPUsername() string  { return "" }
func (testSMTPConfig) GetSMTPPassword() string  { return "" }
func (testSMTPConfig) GetSMTPFromEmail() string { return "crm@example.com" }
func (testSMTPConfig) GetSMTPFromName() string  { return "Lead CRM" }

func TestRenderLeadAssignedTemplate(t *testing.T) {
	html, err := renderEmailTemplate("lead_assigned.html", leadAssignedEmailData{
		baseEmailData: baseEmailData{Title: "New lead assigned", Heading: "New lead assigned"},
		AgentName:     "Asha",
		LeadUID:       "WA-3210-0001",
		Source:        "Web",
		TotalAssigned: 4,
	})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	for _, want := range []string{"Hi Asha", "WA-3210-0001", "<strong>Web</strong>", "<td>4</td>"} {
		if !strings.Contains(html, want) {
			t.Errorf("rendered mail missing %q", want)
		}
	}
}

func TestRenderDailyReportEscapesValues(t *testing.T) {
	html, err := renderEmailTemplate("daily_report.html", dailyReportEmailData{
		baseEmailData: baseEmailData{Title: "r", Heading: "r"},
		ReportDate:    "2026-10-15",
		Rows:          []ReportRow{{Label: "Errors", Value: "<script>"}},
	})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if strings.Contains(html, "<script>") {
		t.Fatal("expected report values to be HTML-escaped")
	}
	if strings.Contains(html, "Download the full report") {
		t.Fatal("download link rendered without a URL")
	}
}

func TestBuildMessageWithAttachment(t *testing.T) {
	s := NewSMTPSender(testSMTPConfig{}, false)
	msg, err := s.buildMessage([]string{"ops@example.com", "bh@example.com"}, "Report", "<p>hi</p>",
		Attachment{Content: []byte("category,metric,value\n"), FileName: "report.csv", MIMEType: "text/csv"})
	if err != nil {
		t.Fatalf("buildMessage: %v", err)
	}

	var buf bytes.Buffer
	if _, err := msg.WriteTo(&buf); err != nil {
		t.Fatalf("write message: %v", err)
	}
	raw := buf.String()
	for _, want := range []string{"ops@example.com", "bh@example.com", "report.csv", "Subject: Report"} {
		if !strings.Contains(raw, want) {
			t.Errorf("message missing %q", want)
		}
	}
}

func TestBuildMessageRejectsBadRecipient(t *testing.T) {
	s := NewSMTPSender(testSMTPConfig{}, false)
	if _, err := s.buildMessage([]string{"not-an-address"}, "x", "y"); err == nil {
		t.Fatal("expected invalid recipient to fail")
	}
}
