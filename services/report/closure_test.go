package reportsvc

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/attendify/attendify/core"
	"github.com/attendify/attendify/core/attendance"
	emailsvc "github.com/attendify/attendify/services/email"
	exportsvc "github.com/attendify/attendify/services/export"
)

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Fatal(string, ...interface{}) {}

type reporterFunc func(ctx context.Context, date string) (attendance.DateReport, error)

func (f reporterFunc) DateReport(ctx context.Context, date string) (attendance.DateReport, error) {
	return f(ctx, date)
}

func TestClosureReporter_Send(t *testing.T) {
	conf := &core.Config{AppName: "Attendify"}
	conf.Attendance.ReportRecipients = []string{"Admin <admin@example.com>", "not an address"}
	mailer := emailsvc.NewConsoleServiceMock(conf, nopLogger{})

	endedAt := time.Date(2024, 3, 1, 18, 0, 0, 0, time.UTC)
	ledger := attendance.Ledger{Date: "2024-03-01", Closed: true, Entries: map[string]attendance.Entry{
		"a": {Status: attendance.StatusPresent, Rating: 8},
		"b": {Status: attendance.StatusPresent, Rating: 9},
		"c": {Status: attendance.StatusAbsent},
	}}
	closure := attendance.Closure{Date: "2024-03-01", Ended: true, EndedAt: endedAt, ClosedBy: "scheduler"}

	reports := reporterFunc(func(_ context.Context, date string) (attendance.DateReport, error) {
		return attendance.DateReport{Date: date, Closed: true, EndedAt: &endedAt}, nil
	})
	r := NewClosureReporter(reports, mailer, nopLogger{}, conf)
	require.Len(t, r.recipients, 1)

	require.NoError(t, r.Send(context.Background(), ledger, closure))

	sent := mailer.SentMessages()
	require.Len(t, sent, 1)
	msg := sent[0]
	assert.Equal(t, "Attendance closed for 2024-03-01", msg.Subject)
	assert.Equal(t, "admin@example.com", msg.To[0].Address)
	assert.True(t, strings.Contains(msg.TextContent, "Present: 2"), msg.TextContent)
	assert.True(t, strings.Contains(msg.TextContent, "Absent: 1"), msg.TextContent)
	assert.True(t, strings.Contains(msg.TextContent, "Average rating: 8.5"), msg.TextContent)
	assert.True(t, strings.Contains(msg.TextContent, "by scheduler"), msg.TextContent)
	assert.True(t, strings.Contains(msg.HTMLContent, "2024-03-01"))
	require.Len(t, msg.Attachments, 1)
	assert.Equal(t, exportsvc.Filename("2024-03-01"), msg.Attachments[0].Filename)
	assert.Equal(t, exportsvc.ContentType, msg.Attachments[0].ContentType)
}

func TestClosureReporter_SendReportError(t *testing.T) {
	conf := &core.Config{AppName: "Attendify"}
	conf.Attendance.ReportRecipients = []string{"admin@example.com"}
	mailer := emailsvc.NewConsoleServiceMock(conf, nopLogger{})
	boom := errors.New("boom")
	reports := reporterFunc(func(context.Context, string) (attendance.DateReport, error) {
		return attendance.DateReport{}, boom
	})

	r := NewClosureReporter(reports, mailer, nopLogger{}, conf)
	err := r.Send(context.Background(), attendance.Ledger{Date: "2024-03-01"}, attendance.Closure{})
	assert.Equal(t, boom, errors.Cause(err))
	assert.Empty(t, mailer.SentMessages())
}
