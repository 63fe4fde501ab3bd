// Package reportsvc e-mails a summary of each closed day.
package reportsvc

import (
	"bytes"
	"context"
	"net/mail"
	"time"

	"github.com/pkg/errors"

	"github.com/attendify/attendify/core"
	"github.com/attendify/attendify/core/attendance"
	exportsvc "github.com/attendify/attendify/services/export"
)

const (
	templateName = "day_closed"
	sendTimeout  = time.Minute
)

// DateReporter builds the per-student report of a date.
type DateReporter interface {
	DateReport(ctx context.Context, date string) (attendance.DateReport, error)
}

// Summary is the day_closed template data.
type Summary struct {
	Date          string
	Present       int
	Absent        int
	AverageRating float64
	EndedAt       time.Time
	ClosedBy      string
}

// ClosureReporter is an attendance.Listener sending the closure summary, with the
// XLSX export attached, to the configured recipients.
type ClosureReporter struct {
	reports    DateReporter
	mailer     core.EmailService
	logger     core.Logger
	recipients []mail.Address
	loc        *time.Location
}

var _ attendance.Listener = (*ClosureReporter)(nil)

func NewClosureReporter(reports DateReporter, mailer core.EmailService, logger core.Logger, conf *core.Config) *ClosureReporter {
	rcpts := make([]mail.Address, 0, len(conf.Attendance.ReportRecipients))
	for _, r := range conf.Attendance.ReportRecipients {
		addr, err := mail.ParseAddress(r)
		if err != nil {
			logger.Warn("ignoring report recipient", errors.Wrap(err, r))
			continue
		}
		rcpts = append(rcpts, *addr)
	}
	return &ClosureReporter{
		reports:    reports,
		mailer:     mailer,
		logger:     logger,
		recipients: rcpts,
		loc:        conf.Attendance.Location(),
	}
}

// Recipients returns the number of valid report recipients.
func (r *ClosureReporter) Recipients() int { return len(r.recipients) }

func (r *ClosureReporter) RecordUpdated(attendance.Record) {}

func (r *ClosureReporter) DayClosed(ledger attendance.Ledger, closure attendance.Closure) {
	if len(r.recipients) == 0 {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		defer cancel()
		if err := r.Send(ctx, ledger, closure); err != nil {
			r.logger.Error("sending closure report", err, map[string]interface{}{"date": ledger.Date})
		}
	}()
}

// Send builds and queues the report of the closed ledger.
func (r *ClosureReporter) Send(ctx context.Context, ledger attendance.Ledger, closure attendance.Closure) error {
	report, err := r.reports.DateReport(ctx, ledger.Date)
	if err != nil {
		return errors.Wrap(err, "building date report")
	}
	msg, err := r.Message(ledger, closure, report)
	if err != nil {
		return err
	}
	r.mailer.SendMessages(msg)
	return nil
}

// Message returns the summary e-mail of a closed day.
func (r *ClosureReporter) Message(ledger attendance.Ledger, closure attendance.Closure, report attendance.DateReport) (*core.EmailMessage, error) {
	var rated, sum int
	for _, e := range ledger.Entries {
		if e.Status == attendance.StatusPresent && e.Rating > 0 {
			rated++
			sum += e.Rating
		}
	}
	summary := Summary{
		Date:     ledger.Date,
		Present:  ledger.Count(attendance.StatusPresent),
		Absent:   ledger.Count(attendance.StatusAbsent),
		EndedAt:  closure.EndedAt.In(r.loc),
		ClosedBy: closure.ClosedBy,
	}
	if rated > 0 {
		summary.AverageRating = core.Round1(float64(sum) / float64(rated))
	}

	msg := &core.EmailMessage{
		To:           r.recipients,
		Subject:      "Attendance closed for " + ledger.Date,
		TemplateName: templateName,
		TemplateData: summary,
	}
	data, err := exportsvc.DateReportBytes(report)
	if err != nil {
		return nil, errors.Wrap(err, "exporting date report")
	}
	if err := msg.Attach(bytes.NewReader(data), exportsvc.Filename(ledger.Date), exportsvc.ContentType); err != nil {
		return nil, err
	}
	return msg, nil
}
