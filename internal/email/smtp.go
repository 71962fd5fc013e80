// Package email renders and delivers outgoing mail over SMTP.
package email

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"time"

	gomail "github.com/wneessen/go-mail"
)

// Attachment is a file sent along with a message.
type Attachment struct {
	Content  []byte
	FileName string
	MIMEType string
}

// Sender is what the rest of the application mails through.
type Sender interface {
	SendLeadAssignedEmail(ctx context.Context, toEmail, agentName, leadUID, source string, totalAssigned int) error
	SendDailyReportEmail(ctx context.Context, to []string, reportDate string, rows []ReportRow, downloadURL string, attachments ...Attachment) error
}

// SMTPSender implements Sender with go-mail.
type SMTPSender struct {
	host        string
	port        int
	username    string
	password    string
	fromName    string
	fromEmail   string
	tlsInsecure bool
}

// Config is the subset of application config the sender needs.
type Config interface {
	GetSMTPHost() string
	GetSMTPPort() int
	GetSMTPUsername() string
	GetSMTPPassword() string
	GetSMTPFromEmail() string
	GetSMTPFromName() string
}

// NewSMTPSender creates a sender. tlsInsecure skips certificate checks for
// relay hosts with private CAs.
func NewSMTPSender(cfg Config, tlsInsecure bool) *SMTPSender {
	return &SMTPSender{
		host:        cfg.GetSMTPHost(),
		port:        cfg.GetSMTPPort(),
		username:    cfg.GetSMTPUsername(),
		password:    cfg.GetSMTPPassword(),
		fromName:    cfg.GetSMTPFromName(),
		fromEmail:   cfg.GetSMTPFromEmail(),
		tlsInsecure: tlsInsecure,
	}
}

func (s *SMTPSender) buildMessage(to []string, subject, htmlContent string, attachments ...Attachment) (*gomail.Msg, error) {
	msg := gomail.NewMsg()
	if err := msg.FromFormat(s.fromName, s.fromEmail); err != nil {
		return nil, fmt.Errorf("smtp from: %w", err)
	}
	if err := msg.To(to...); err != nil {
		return nil, fmt.Errorf("smtp to: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(gomail.TypeTextHTML, htmlContent)

	for _, att := range attachments {
		opts := []gomail.FileOption{}
		if att.MIMEType != "" {
			opts = append(opts, gomail.WithFileContentType(gomail.ContentType(att.MIMEType)))
		}
		if err := msg.AttachReader(att.FileName, bytes.NewReader(att.Content), opts...); err != nil {
			return nil, fmt.Errorf("smtp attach %s: %w", att.FileName, err)
		}
	}
	return msg, nil
}

func (s *SMTPSender) send(ctx context.Context, to []string, subject, htmlContent string, attachments ...Attachment) error {
	msg, err := s.buildMessage(to, subject, htmlContent, attachments...)
	if err != nil {
		return err
	}

	opts := []gomail.Option{
		gomail.WithPort(s.port),
		gomail.WithTLSPortPolicy(gomail.TLSOpportunistic),
		gomail.WithTimeout(15 * time.Second),
	}
	if s.username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(s.username),
			gomail.WithPassword(s.password),
		)
	}
	if s.tlsInsecure {
		opts = append(opts, gomail.WithTLSConfig(&tls.Config{ServerName: s.host, InsecureSkipVerify: true})) //nolint:gosec // opt-in via OUTBOUND_TLS_INSECURE
	}

	client, err := gomail.NewClient(s.host, opts...)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

// SendLeadAssignedEmail tells an agent a lead was auto-assigned to them.
func (s *SMTPSender) SendLeadAssignedEmail(ctx context.Context, toEmail, agentName, leadUID, source string, totalAssigned int) error {
	content, err := renderEmailTemplate("lead_assigned.html", leadAssignedEmailData{
		baseEmailData: baseEmailData{
			Title:   "New lead assigned",
			Heading: "New lead assigned",
		},
		AgentName:     agentName,
		LeadUID:       leadUID,
		Source:        source,
		TotalAssigned: totalAssigned,
	})
	if err != nil {
		return err
	}
	return s.send(ctx, []string{toEmail}, fmt.Sprintf(subjectLeadAssignedFmt, source, leadUID), content)
}

// SendDailyReportEmail mails the daily system report.
func (s *SMTPSender) SendDailyReportEmail(ctx context.Context, to []string, reportDate string, rows []ReportRow, downloadURL string, attachments ...Attachment) error {
	content, err := renderEmailTemplate("daily_report.html", dailyReportEmailData{
		baseEmailData: baseEmailData{
			Title:      "Auto-assign daily report",
			Heading:    "Auto-assign daily report",
			Subheading: reportDate,
		},
		ReportDate:  reportDate,
		Rows:        rows,
		DownloadURL: downloadURL,
	})
	if err != nil {
		return err
	}
	return s.send(ctx, to, fmt.Sprintf(subjectDailyReportFmt, reportDate), content, attachments...)
}

var _ Sender = (*SMTPSender)(nil)
