package api

import (
	"context"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	tracerName       = "tessera-modules-api/api"
	applySpanName    = "api.modules.apply"
	applyEventName   = "modules.apply.completed"
	applyEventDomain = "modules"
	applyRoute       = "/api/modules/apply"
)

// applyRequestMetrics collects per-request timings for the apply endpoint and
// emits them both as a structured log entry and as an OTel span event.
type applyRequestMetrics struct {
	logger *log.Logger
	span   trace.Span
	start  time.Time

	authDuration   time.Duration
	applyDuration  time.Duration
	encodeDuration time.Duration
	tasksCreated   int
	epicReused     bool
	errorStage     string
}

func newApplyRequestMetrics(ctx context.Context, logger *log.Logger) (*applyRequestMetrics, context.Context) {
	spanCtx, span := otel.Tracer(tracerName).Start(ctx, applySpanName)
	return &applyRequestMetrics{
		logger: logger,
		span:   span,
		start:  time.Now(),
	}, spanCtx
}

func (m *applyRequestMetrics) ObserveAuth(d time.Duration) {
	if d > 0 {
		m.authDuration = d
	}
}

func (m *applyRequestMetrics) ObserveApply(d time.Duration) {
	if d > 0 {
		m.applyDuration = d
	}
}

func (m *applyRequestMetrics) ObserveEncode(d time.Duration) {
	if d > 0 {
		m.encodeDuration = d
	}
}

func (m *applyRequestMetrics) SetTasksCreated(count int) {
	if count < 0 {
		count = 0
	}
	m.tasksCreated = count
}

func (m *applyRequestMetrics) SetEpicReused(reused bool) {
	m.epicReused = reused
}

func (m *applyRequestMetrics) SetErrorStage(stage string) {
	if stage != "" {
		m.errorStage = stage
	}
}

// Log finalizes the span and writes the observability event. It must be called
// exactly once per request, typically from a deferred closure.
func (m *applyRequestMetrics) Log(status int, err error) {
	if m == nil || m.logger == nil {
		return
	}

	totalMillis := durationToMillis(time.Since(m.start))
	severityText, severityNumber := severityForStatus(status, err)

	attrs := []attribute.KeyValue{
		attribute.String("http.route", applyRoute),
		attribute.Int("http.status_code", status),
		attribute.Float64("modules.apply.total_ms", totalMillis),
		attribute.Int("modules.apply.tasks_created", m.tasksCreated),
		attribute.Bool("modules.apply.epic_reused", m.epicReused),
	}
	if m.authDuration > 0 {
		attrs = append(attrs, attribute.Float64("modules.apply.auth_ms", durationToMillis(m.authDuration)))
	}
	if m.applyDuration > 0 {
		attrs = append(attrs, attribute.Float64("modules.apply.apply_ms", durationToMillis(m.applyDuration)))
	}
	if m.encodeDuration > 0 {
		attrs = append(attrs, attribute.Float64("modules.apply.encode_ms", durationToMillis(m.encodeDuration)))
	}
	if m.errorStage != "" {
		attrs = append(attrs, attribute.String("modules.apply.error_stage", m.errorStage))
	}
	if err != nil {
		attrs = append(attrs, attribute.String("error.message", err.Error()))
	}

	fields := log.Fields{
		"event.name":      applyEventName,
		"event.domain":    applyEventDomain,
		"severity_text":   severityText,
		"severity_number": severityNumber,
		"attributes":      attributesAsMap(attrs),
	}

	if m.span != nil {
		m.span.SetAttributes(attrs...)
		eventAttrs := append([]attribute.KeyValue{
			attribute.String("event.name", applyEventName),
			attribute.String("event.domain", applyEventDomain),
			attribute.String("severity_text", severityText),
			attribute.Int("severity_number", severityNumber),
		}, attrs...)
		m.span.AddEvent("observability.event", trace.WithAttributes(eventAttrs...))
		if err != nil || status >= http.StatusInternalServerError {
			m.span.SetStatus(codes.Error, severityText)
		} else {
			m.span.SetStatus(codes.Ok, "")
		}
		if sc := m.span.SpanContext(); sc.HasTraceID() {
			fields["trace_id"] = sc.TraceID().String()
		}
		m.span.End()
	}

	m.logger.WithFields(fields).Info("observability.event")
}

func severityForStatus(status int, err error) (string, int) {
	switch {
	case err != nil || status >= http.StatusInternalServerError:
		return "ERROR", 17
	case status >= http.StatusBadRequest:
		return "WARN", 13
	default:
		return "INFO", 9
	}
}

func attributesAsMap(attrs []attribute.KeyValue) map[string]any {
	out := make(map[string]any, len(attrs))
	for _, kv := range attrs {
		out[string(kv.Key)] = kv.Value.AsInterface()
	}
	return out
}

func durationToMillis(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(d) / float64(time.Millisecond)
}
