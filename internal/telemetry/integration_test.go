package telemetry

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// Tests here install a global tracer provider and therefore do not run in parallel.

func installTestProvider(t *testing.T) (*tracetest.InMemoryExporter, *sdktrace.TracerProvider) {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return exporter, tp
}

// TestToolSpanUnderHTTPSpan verifies that a tool span joins the trace started by otelmux.
func TestToolSpanUnderHTTPSpan(t *testing.T) {
	exporter, tp := installTestProvider(t)

	r := mux.NewRouter()
	r.Use(otelmux.Middleware("test-service"))
	r.HandleFunc("/api/v1/tools/{name}", func(w http.ResponseWriter, r *http.Request) {
		_, span := StartToolSpan(r.Context(), mux.Vars(r)["name"], "req-1")
		EndToolSpan(span, nil)
		w.WriteHeader(http.StatusOK)
	})

	tests := []struct {
		name        string
		traceParent string
	}{
		{name: "new trace"},
		{name: "incoming trace", traceParent: "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exporter.Reset()

			req := httptest.NewRequest("POST", "/api/v1/tools/list_clients", nil)
			if tt.traceParent != "" {
				req.Header.Set("traceparent", tt.traceParent)
			}
			rr := httptest.NewRecorder()
			r.ServeHTTP(rr, req)

			if rr.Code != http.StatusOK {
				t.Errorf("Expected status OK, got %d", rr.Code)
			}
			if err := tp.ForceFlush(context.Background()); err != nil {
				t.Errorf("Failed to flush tracer provider: %v", err)
			}

			spans := exporter.GetSpans()
			if len(spans) != 2 {
				t.Fatalf("Expected HTTP and tool spans, got %d", len(spans))
			}
			// Syncer exports in end order: the tool span ends first
			tool, httpSpan := spans[0], spans[1]
			if tool.Name != "tool.list_clients" {
				t.Errorf("Expected tool span name tool.list_clients, got %s", tool.Name)
			}
			if tool.SpanContext.TraceID() != httpSpan.SpanContext.TraceID() {
				t.Error("Expected tool span to share the HTTP span trace id")
			}
			if tool.Parent.SpanID() != httpSpan.SpanContext.SpanID() {
				t.Error("Expected tool span to be a child of the HTTP span")
			}
			if tt.traceParent != "" && httpSpan.SpanContext.TraceID().String() != "4bf92f3577b34da6a3ce929d0e0e4736" {
				t.Errorf("Expected incoming trace id to be continued, got %s", httpSpan.SpanContext.TraceID())
			}
		})
	}
}

func TestEndToolSpanRecordsError(t *testing.T) {
	exporter, tp := installTestProvider(t)

	_, span := StartToolSpan(context.Background(), "get_invoice", "req-2")
	EndToolSpan(span, errors.New("invoice 9: not found"))
	if err := tp.ForceFlush(context.Background()); err != nil {
		t.Fatalf("Failed to flush tracer provider: %v", err)
	}

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("Expected one span, got %d", len(spans))
	}
	if spans[0].Status.Code != codes.Error {
		t.Errorf("Expected error status, got %v", spans[0].Status.Code)
	}
	if len(spans[0].Events) == 0 {
		t.Error("Expected the error to be recorded as an event")
	}
}
