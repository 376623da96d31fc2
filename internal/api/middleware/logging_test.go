package middleware

import (
	"log/slog"
	"net/http"
	"testing"
)

func TestRequestLogLevel(t *testing.T) {
	tests := []struct {
		path   string
		status int
		want   slog.Level
	}{
		{"/api/v1/sync/entries", http.StatusOK, slog.LevelInfo},
		{"/api/v1/sync/entries", http.StatusUnprocessableEntity, slog.LevelWarn},
		{"/api/v1/sync/entries", http.StatusInternalServerError, slog.LevelError},
		{"/health/live", http.StatusOK, slog.LevelDebug},
		{"/health/ready", http.StatusServiceUnavailable, slog.LevelError},
		{"/metrics", http.StatusOK, slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := requestLogLevel(tt.path, tt.status); got != tt.want {
			t.Errorf("requestLogLevel(%q, %d) = %v, ожидалось %v",
				tt.path, tt.status, got, tt.want)
		}
	}
}
