package instrumentation

import (
	"context"
	"testing"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name   string
		config Config
	}{
		{
			name:   "disabled",
			config: Config{Enabled: false},
		},
		{
			name: "with service identity",
			config: Config{
				Enabled:        true,
				ServiceName:    "test-service",
				ServiceVersion: "1.0.0",
			},
		},
		{
			name:   "empty service name gets default",
			config: Config{Enabled: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inst, err := New(tt.config)
			if err != nil {
				t.Fatalf("New() failed: %v", err)
			}

			if inst.Meter("http") == nil {
				t.Error("Meter() returned nil")
			}
			if inst.Tracer("server") == nil {
				t.Error("Tracer() returned nil")
			}
			if inst.Metrics() == nil {
				t.Error("Metrics() returned nil")
			}
			if inst.TracerProvider() == nil {
				t.Error("TracerProvider() returned nil")
			}
			if inst.MeterProvider() == nil {
				t.Error("MeterProvider() returned nil")
			}
		})
	}
}

func TestShutdownIdempotent(t *testing.T) {
	inst, err := New(Config{Enabled: true, ServiceName: "test"})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	ctx := context.Background()
	if err := inst.Shutdown(ctx); err != nil {
		t.Errorf("first Shutdown() failed: %v", err)
	}
	if err := inst.Shutdown(ctx); err != nil {
		t.Errorf("second Shutdown() failed: %v", err)
	}
}

func TestRegisterStorageSizeCallbacks(t *testing.T) {
	inst, err := New(Config{Enabled: true, ServiceName: "test"})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	err = inst.RegisterStorageSizeCallbacks(
		func() int64 { return 1 },
		func() int64 { return 2 },
		func() int64 { return 3 },
		func() int64 { return 4 },
	)
	if err != nil {
		t.Errorf("RegisterStorageSizeCallbacks() failed: %v", err)
	}
}

func TestMetricsRecordersAreSafe(t *testing.T) {
	inst, err := New(Config{Enabled: true, ServiceName: "test"})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	// The recorders run against noop providers; none may panic.
	ctx := context.Background()
	m := inst.Metrics()
	m.RecordHTTPRequest(ctx, "POST", "/token", 200, 1.5)
	m.RecordAuthorizationRequest(ctx, "client-1", "code")
	m.RecordTokenIssued(ctx, "client-1", "authorization_code")
	m.RecordTokenRefresh(ctx, "client-1")
	m.RecordTokenRevocation(ctx, "client-1", "access_token")
	m.RecordAuthFailure(ctx, "invalid_client")
	m.RecordCodeReuseDetected(ctx)
	m.RecordTokenReuseDetected(ctx)
	m.RecordAuditEvent(ctx, "token_issued")
	m.RecordStorageOperation(ctx, "save_client", "success", 0.2)
}
