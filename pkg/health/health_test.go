package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRunWorstStatusWins(t *testing.T) {
	c := NewChecker()
	c.Register("postgres", PingCheck(func(ctx context.Context) error { return nil }))
	c.Register("last_run", func(ctx context.Context) ComponentHealth {
		return ComponentHealth{Status: StatusDegraded, Message: "partial"}
	})
	if got := c.Run(context.Background()).Status; got != StatusDegraded {
		t.Errorf("status = %s, want degraded", got)
	}

	c.Register("redis", PingCheck(func(ctx context.Context) error { return errors.New("refused") }))
	report := c.Run(context.Background())
	if report.Status != StatusDown {
		t.Errorf("status = %s, want down", report.Status)
	}
	if report.Components["redis"].Message != "refused" {
		t.Errorf("redis message = %q", report.Components["redis"].Message)
	}
}

func TestReadyHandler(t *testing.T) {
	c := NewChecker()
	c.Register("postgres", PingCheck(func(ctx context.Context) error { return errors.New("down") }))

	rec := httptest.NewRecorder()
	c.ReadyHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("code = %d, want 503", rec.Code)
	}
	var report Report
	if err := json.NewDecoder(rec.Body).Decode(&report); err != nil {
		t.Fatalf("decoding report: %v", err)
	}
	if report.Components["postgres"].Status != StatusDown {
		t.Errorf("postgres status = %s", report.Components["postgres"].Status)
	}
}
