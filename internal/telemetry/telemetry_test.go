package telemetry

import (
	"context"
	"testing"

	"storedash/internal/config"
)

func TestSetup_DisabledWithoutEndpoint(t *testing.T) {
	t.Parallel()

	tel, err := Setup(context.Background(), config.TelemetryConfig{ServiceName: "storedash"})
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	if tel.Handler != nil {
		t.Fatalf("expected no log bridge without an endpoint")
	}
	if err := tel.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
}

func TestSetup_EnabledInstallsBridge(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "http://127.0.0.1:4318")

	tel, err := Setup(context.Background(), config.TelemetryConfig{ServiceName: "storedash", Endpoint: "http://127.0.0.1:4318"})
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	if tel.Handler == nil {
		t.Fatalf("expected an slog bridge")
	}
	if len(tel.shutdown) != 2 {
		t.Fatalf("expected two providers, got %d", len(tel.shutdown))
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = tel.Shutdown(ctx)
	if tel.shutdown != nil {
		t.Fatalf("expected shutdown to reset providers")
	}
}
