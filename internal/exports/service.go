package exports

import (
	"context"
	"fmt"

	"leadcrm_backend/internal/adapters/storage"
	"leadcrm_backend/internal/email"
	"leadcrm_backend/platform/logger"
	"leadcrm_backend/platform/metrics"

	"github.com/rotisserie/eris"
)

const reportFolder = "daily"

// File is a rendered report ready to send.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// DailyOptions configures the daily report. Each delivery channel is
// skipped when unset.
type DailyOptions struct {
	Bucket     string
	Recipients []string
}

// Service renders reports and runs the daily report job.
type Service struct {
	builder *Builder
	store   storage.ObjectStore
	mailer  email.Sender
	metrics *metrics.Metrics
	log     *logger.Logger
	opts    DailyOptions
}

// NewService creates the exports service. store and mailer may be nil.
func NewService(builder *Builder, store storage.ObjectStore, mailer email.Sender, m *metrics.Metrics, log *logger.Logger, opts DailyOptions) *Service {
	return &Service{builder: builder, store: store, mailer: mailer, metrics: m, log: log, opts: opts}
}

// Export renders report in format.
func (s *Service) Export(ctx context.Context, report, format string) (File, error) {
	format, err := ParseFormat(format)
	if err != nil {
		return File{}, err
	}
	t, err := s.builder.Build(ctx, report)
	if err != nil {
		return File{}, err
	}
	data, err := Render(t, format)
	if err != nil {
		return File{}, err
	}
	if s.metrics != nil {
		s.metrics.ReportsExported.WithLabelValues(report, format).Inc()
	}
	return File{
		Name:        FileName(report, format, s.builder.now().In(s.builder.loc)),
		ContentType: ContentType(format),
		Data:        data,
	}, nil
}

// DailyResult describes one daily report run.
type DailyResult struct {
	FileName    string `json:"file_name"`
	FileKey     string `json:"file_key,omitempty"`
	DownloadURL string `json:"download_url,omitempty"`
	Mailed      bool   `json:"mailed"`
}

// RunDaily renders the system report as CSV, archives it when a bucket
// is configured and mails it to the report recipients.
func (s *Service) RunDaily(ctx context.Context) (DailyResult, error) {
	t, err := s.builder.Build(ctx, ReportSystem)
	if err != nil {
		return DailyResult{}, err
	}
	data, err := Render(t, FormatCSV)
	if err != nil {
		return DailyResult{}, err
	}
	now := s.builder.now().In(s.builder.loc)
	res := DailyResult{FileName: FileName(ReportSystem, FormatCSV, now)}
	if s.metrics != nil {
		s.metrics.ReportsExported.WithLabelValues(ReportSystem, FormatCSV).Inc()
	}

	if s.store != nil && s.opts.Bucket != "" {
		folder := fmt.Sprintf("%s/%s", reportFolder, now.Format("2006/01"))
		key, err := s.store.UploadReport(ctx, s.opts.Bucket, folder, res.FileName, ContentType(FormatCSV), data)
		if err != nil {
			return res, eris.Wrap(err, "archive daily report")
		}
		res.FileKey = key
		url, err := s.store.GenerateDownloadURL(ctx, s.opts.Bucket, key)
		if err != nil {
			s.log.WithContext(ctx).Warn("daily report download link failed", "error", err, "key", key)
		} else {
			res.DownloadURL = url.URL
		}
	}

	if s.mailer != nil && len(s.opts.Recipients) > 0 {
		rows := make([]email.ReportRow, 0, len(t.Rows))
		for _, r := range t.Rows {
			rows = append(rows, email.ReportRow{Label: r[0], Value: r[1]})
		}
		att := email.Attachment{Content: data, FileName: res.FileName, MIMEType: ContentType(FormatCSV)}
		if err := s.mailer.SendDailyReportEmail(ctx, s.opts.Recipients, now.Format("02 Jan 2006"), rows, res.DownloadURL, att); err != nil {
			return res, eris.Wrap(err, "mail daily report")
		}
		res.Mailed = true
	}

	s.log.WithContext(ctx).Info("daily report generated",
		"file", res.FileName, "archived", res.FileKey != "", "mailed", res.Mailed)
	return res, nil
}

