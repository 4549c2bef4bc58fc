package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"tutor_booking_engine/internal/app"
)

type fakeSweeps struct {
	ran []string
	at  []time.Time
}

func (f *fakeSweeps) Names() []string { return []string{"no_show", "reminders"} }

func (f *fakeSweeps) Run(_ context.Context, name string, now time.Time) (app.SweepReport, error) {
	if name != "no_show" && name != "reminders" {
		return app.SweepReport{}, fmt.Errorf("%w: %s", app.ErrUnknownSweep, name)
	}
	f.ran = append(f.ran, name)
	f.at = append(f.at, now)
	return app.SweepReport{Sweep: name, StartedAt: now, Processed: 2, Succeeded: 2}, nil
}

func newTestServer(t *testing.T) (*httptest.Server, *fakeSweeps) {
	t.Helper()
	logger, _ := test.NewNullLogger()
	sweeps := &fakeSweeps{}
	srv := httptest.NewServer(NewRouter(NewHandler(sweeps, logrus.NewEntry(logger)), logger))
	t.Cleanup(srv.Close)
	return srv, sweeps
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t)
	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestRunSweep(t *testing.T) {
	srv, sweeps := newTestServer(t)

	resp, err := http.Post(srv.URL+"/sweeps/no_show?at=2026-03-02T10:00:00Z", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var report app.SweepReport
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if report.Sweep != "no_show" || report.Succeeded != 2 {
		t.Errorf("unexpected report %+v", report)
	}
	want := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	if len(sweeps.at) != 1 || !sweeps.at[0].Equal(want) {
		t.Errorf("ran at %v, want %v", sweeps.at, want)
	}
}

func TestRunSweepErrors(t *testing.T) {
	srv, sweeps := newTestServer(t)
	tests := []struct {
		name   string
		method string
		path   string
		status int
	}{
		{name: "unknown sweep", method: http.MethodPost, path: "/sweeps/nope", status: http.StatusNotFound},
		{name: "bad timestamp", method: http.MethodPost, path: "/sweeps/no_show?at=yesterday", status: http.StatusBadRequest},
		{name: "wrong method", method: http.MethodGet, path: "/sweeps/no_show", status: http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			req, _ := http.NewRequest(tt.method, srv.URL+tt.path, nil)
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatal(err)
			}
			resp.Body.Close()
			if resp.StatusCode != tt.status {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.status)
			}
		})
	}
	if len(sweeps.ran) != 0 {
		t.Errorf("no sweep should have run, got %v", sweeps.ran)
	}
}
