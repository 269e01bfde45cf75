package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/mamadbah2/shellsale/internal/config"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type stubReports struct {
	body string
	err  error
	at   time.Time
}

func (s *stubReports) GenerateWeeklyReport(_ context.Context, now time.Time) (string, error) {
	s.at = now
	return s.body, s.err
}

type stubSender struct {
	sent []string
	err  error
}

func (s *stubSender) Broadcast(_ context.Context, body string) error {
	s.sent = append(s.sent, body)
	return s.err
}

func weekly() config.ReportingConfig {
	return config.ReportingConfig{CronSchedule: "0 20 * * 5", Timezone: "UTC"}
}

func TestRunWeeklyReport(t *testing.T) {
	reports := &stubReports{body: "Sales digest"}
	sender := &stubSender{}
	s, err := NewScheduler(weekly(), reports, sender, zaptest.NewLogger(t))
	require.NoError(t, err)
	fixed := time.Date(2024, 5, 3, 20, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	require.NoError(t, s.RunWeeklyReport(context.Background()))
	assert.Equal(t, []string{"Sales digest"}, sender.sent)
	assert.Equal(t, fixed, reports.at)
}

func TestRunWeeklyReportErrors(t *testing.T) {
	s, err := NewScheduler(weekly(), &stubReports{err: errors.New("store down")}, &stubSender{}, nil)
	require.NoError(t, err)
	require.ErrorContains(t, s.RunWeeklyReport(context.Background()), "generate weekly report")

	sender := &stubSender{err: errors.New("unreachable")}
	s, err = NewScheduler(weekly(), &stubReports{body: "x"}, sender, nil)
	require.NoError(t, err)
	require.ErrorContains(t, s.RunWeeklyReport(context.Background()), "send weekly report")
}

func TestStartRejectsBadSchedule(t *testing.T) {
	s, err := NewScheduler(config.ReportingConfig{CronSchedule: "every friday", Timezone: "UTC"}, &stubReports{}, &stubSender{}, nil)
	require.NoError(t, err)
	require.Error(t, s.Start())
}

func TestStartStop(t *testing.T) {
	s, err := NewScheduler(weekly(), &stubReports{}, &stubSender{}, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NoError(t, s.Start())
	s.Stop()
}

func TestNewSchedulerRejectsUnknownTimezone(t *testing.T) {
	_, err := NewScheduler(config.ReportingConfig{CronSchedule: "0 20 * * 5", Timezone: "Mars/Olympus"}, &stubReports{}, &stubSender{}, nil)
	require.Error(t, err)
}
