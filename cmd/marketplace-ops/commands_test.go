package main

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/bonyankop-api/internal/service"
)

type sweeperStub struct {
	report service.MaintenanceReport
	err    error
}

func (s sweeperStub) RunOnce(context.Context) (service.MaintenanceReport, error) {
	return s.report, s.err
}

func TestRunSweep(t *testing.T) {
	var out bytes.Buffer
	stub := sweeperStub{report: service.MaintenanceReport{QuotesExpired: 4, RequestsExpired: 1}}
	require.NoError(t, runSweep(context.Background(), stub, &out, false))
	assert.Contains(t, out.String(), "quotes expired:   4")
	assert.Contains(t, out.String(), "requests expired: 1")

	out.Reset()
	stub.report.RanAt = time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	stub.err = errors.New("quotes table locked")
	err := runSweep(context.Background(), stub, &out, true)
	require.Error(t, err)
	assert.JSONEq(t, `{"quotes_expired":4,"requests_expired":1,"ran_at":"2024-05-01T00:00:00Z"}`, out.String())
}

type recomputerStub struct {
	failing map[string]bool
	done    []string
}

func (r *recomputerStub) Recompute(_ context.Context, id string) error {
	if r.failing[id] {
		return errors.New("profile locked")
	}
	r.done = append(r.done, id)
	return nil
}

func TestRunRecomputeContinuesPastFailures(t *testing.T) {
	var out bytes.Buffer
	stub := &recomputerStub{failing: map[string]bool{"b": true}}
	err := runRecompute(context.Background(), stub, zap.NewNop(), []string{"a", "b", "c"}, &out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "provider b")
	assert.Equal(t, []string{"a", "c"}, stub.done)
	assert.Equal(t, "recomputed a\nrecomputed c\n", out.String())
}

func TestCleanIDs(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, cleanIDs([]string{" a", "", "b", "a "}))
	assert.Empty(t, cleanIDs(nil))
}

func TestRecomputeRequiresProvider(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetArgs([]string{"recompute-reputation"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--provider")
}
