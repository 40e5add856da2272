package service

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// newJWKSMock создаёт HTTP-сервер, отдающий пустой JWKS.
func newJWKSMock(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"keys":[]}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestNewDephealthService_ValidURL(t *testing.T) {
	mockServer := newJWKSMock(t)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	// Используем изолированный Prometheus registry для тестов
	reg := prometheus.NewRegistry()

	ds, err := NewDephealthServiceWithRegisterer(DephealthParams{
		ServiceID:     "test-td-01",
		Group:         "techdir",
		DepName:       "admin-jwks",
		JWKSURL:       mockServer.URL,
		CheckInterval: 5 * time.Second,
	}, logger, reg)
	if err != nil {
		t.Fatalf("Ошибка создания DephealthService: %v", err)
	}
	if ds == nil {
		t.Fatal("DephealthService nil")
	}
}

func TestDephealthService_StartStop(t *testing.T) {
	mockServer := newJWKSMock(t)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	ds, err := NewDephealthServiceWithRegisterer(DephealthParams{
		ServiceID:     "test-td-02",
		Group:         "techdir",
		DepName:       "admin-jwks",
		JWKSURL:       mockServer.URL,
		CheckInterval: time.Second,
		IsEntry:       true,
	}, logger, prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("Ошибка создания DephealthService: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start не должен блокировать
	if err := ds.Start(ctx); err != nil {
		t.Fatalf("Ошибка запуска: %v", err)
	}

	// Stop не должен паниковать
	ds.Stop()
}
