package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/bonyankop-api/internal/models"
)

type sweeperStub struct {
	mu    sync.Mutex
	count int64
	err   error
	calls []time.Time
}

func (s *sweeperStub) SweepExpired(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, now)
	return s.count, s.err
}

func (s *sweeperStub) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func TestMaintenanceServiceRunOnce(t *testing.T) {
	quotes := &sweeperStub{count: 3}
	requests := &sweeperStub{count: 1}
	svc := NewMaintenanceService(quotes, requests, nil, MaintenanceConfig{})
	svc.now = func() time.Time { return fixtureNow }

	report, err := svc.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), report.QuotesExpired)
	assert.Equal(t, int64(1), report.RequestsExpired)
	assert.Equal(t, fixtureNow, report.RanAt)
	assert.Equal(t, []time.Time{fixtureNow}, quotes.calls)
	assert.Equal(t, []time.Time{fixtureNow}, requests.calls)
}

func TestMaintenanceServiceQuoteFailureStillSweepsRequests(t *testing.T) {
	quoteErr := errors.New("quotes table locked")
	quotes := &sweeperStub{err: quoteErr}
	requests := &sweeperStub{count: 2}
	svc := NewMaintenanceService(quotes, requests, nil, MaintenanceConfig{})

	report, err := svc.RunOnce(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, quoteErr)
	assert.Zero(t, report.QuotesExpired)
	assert.Equal(t, int64(2), report.RequestsExpired)
	assert.Equal(t, 1, requests.callCount())
}

func TestMaintenanceServiceEndToEndSweep(t *testing.T) {
	f := newLifecycleFixture(t)
	past := fixtureNow.Add(-time.Hour)
	stale := f.seedRequest(models.RequestStatusOpen, &past)
	svc := NewMaintenanceService(f.quotes, f.requests, nil, MaintenanceConfig{})
	svc.now = func() time.Time { return fixtureNow }

	report, err := svc.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), report.RequestsExpired)
	assert.Equal(t, models.RequestStatusExpired, f.request(stale.ID).Status)
}

func TestMaintenanceServiceStartStopsOnCancel(t *testing.T) {
	quotes := &sweeperStub{}
	svc := NewMaintenanceService(quotes, nil, nil, MaintenanceConfig{Interval: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	svc.Start(ctx)
	require.Eventually(t, func() bool { return quotes.callCount() == 1 }, time.Second, 5*time.Millisecond)
	cancel()

	done := make(chan struct{})
	go func() {
		svc.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("sweeper did not stop")
	}
	assert.Equal(t, 1, quotes.callCount())
}
