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

	"github.com/evercrisp-ai/Ben-OS-sub001/domain"
)

const (
	bulkRoute        = "/api/tasks/bulk"
	bulkSpanName     = "tasks.bulk"
	bulkEventName    = "tasks.bulk.request"
	bulkEventDomain  = "board"
	observabilityMsg = "observability.event"
	tracerName       = "github.com/evercrisp-ai/Ben-OS-sub001/api"
)

// bulkRequestMetrics records one bulk request as a span plus a structured
// log entry carrying the same attributes.
type bulkRequestMetrics struct {
	logger         *log.Logger
	span           trace.Span
	start          time.Time
	decodeDuration time.Duration
	execDuration   time.Duration
	encodeDuration time.Duration
	operations     int
	succeeded      int
	failed         int
	idempotent     bool
	errorStage     string
}

func newBulkRequestMetrics(ctx context.Context, logger *log.Logger) (*bulkRequestMetrics, context.Context) {
	spanCtx, span := otel.Tracer(tracerName).Start(ctx, bulkSpanName, trace.WithSpanKind(trace.SpanKindServer))
	return &bulkRequestMetrics{logger: logger, span: span, start: time.Now()}, spanCtx
}

func (m *bulkRequestMetrics) ObserveDecode(d time.Duration)  { m.decodeDuration = positive(d) }
func (m *bulkRequestMetrics) ObserveExecute(d time.Duration) { m.execDuration = positive(d) }
func (m *bulkRequestMetrics) ObserveEncode(d time.Duration)  { m.encodeDuration = positive(d) }

func (m *bulkRequestMetrics) SetOperations(n int) { m.operations = n }

func (m *bulkRequestMetrics) SetIdempotencyKeyProvided(provided bool) { m.idempotent = provided }

func (m *bulkRequestMetrics) SetSummary(s domain.BulkSummary) {
	m.succeeded = s.Success
	m.failed = s.Failed
}

func (m *bulkRequestMetrics) SetErrorStage(stage string) {
	if stage == "" {
		return
	}
	m.errorStage = stage
}

func (m *bulkRequestMetrics) attributes(status int, err error) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String("http.route", bulkRoute),
		attribute.Int("http.status_code", status),
		attribute.Float64("board.bulk.total_ms", durationToMillis(time.Since(m.start))),
		attribute.Int("board.bulk.operations", m.operations),
		attribute.Int("board.bulk.succeeded", m.succeeded),
		attribute.Int("board.bulk.failed", m.failed),
		attribute.Bool("board.bulk.idempotency_key_provided", m.idempotent),
	}
	if m.decodeDuration > 0 {
		attrs = append(attrs, attribute.Float64("board.bulk.decode_ms", durationToMillis(m.decodeDuration)))
	}
	if m.execDuration > 0 {
		attrs = append(attrs, attribute.Float64("board.bulk.execute_ms", durationToMillis(m.execDuration)))
	}
	if m.encodeDuration > 0 {
		attrs = append(attrs, attribute.Float64("board.bulk.encode_ms", durationToMillis(m.encodeDuration)))
	}
	if m.errorStage != "" {
		attrs = append(attrs, attribute.String("board.bulk.error_stage", m.errorStage))
	}
	if err != nil {
		attrs = append(attrs, attribute.String("error.message", err.Error()))
	}
	return attrs
}

// Log ends the span and emits the observability event.
func (m *bulkRequestMetrics) Log(status int, err error) {
	if m == nil {
		return
	}
	severityText, severityNumber := severityForStatus(status, err)
	attrs := m.attributes(status, err)

	if m.span != nil {
		eventAttrs := append([]attribute.KeyValue{
			attribute.String("event.name", bulkEventName),
			attribute.String("event.domain", bulkEventDomain),
			attribute.String("severity_text", severityText),
			attribute.Int("severity_number", severityNumber),
		}, attrs...)
		m.span.SetAttributes(attrs...)
		m.span.AddEvent(observabilityMsg, trace.WithAttributes(eventAttrs...))
		if severityText == "ERROR" {
			desc := http.StatusText(status)
			if err != nil {
				desc = err.Error()
			}
			m.span.SetStatus(codes.Error, desc)
		} else {
			m.span.SetStatus(codes.Ok, "")
		}
		defer m.span.End()
	}

	if m.logger == nil {
		return
	}
	attrMap := make(map[string]any, len(attrs))
	for _, kv := range attrs {
		attrMap[string(kv.Key)] = kv.Value.AsInterface()
	}
	fields := log.Fields{
		"event.name":      bulkEventName,
		"event.domain":    bulkEventDomain,
		"severity_text":   severityText,
		"severity_number": severityNumber,
		"attributes":      attrMap,
	}
	if m.span != nil {
		if sc := m.span.SpanContext(); sc.IsValid() {
			fields["trace_id"] = sc.TraceID().String()
			fields["span_id"] = sc.SpanID().String()
		}
	}
	entry := m.logger.WithFields(fields)
	switch severityText {
	case "ERROR":
		entry.Error(observabilityMsg)
	case "WARN":
		entry.Warn(observabilityMsg)
	default:
		entry.Info(observabilityMsg)
	}
}

// severityForStatus maps a response to OpenTelemetry log severity.
func severityForStatus(status int, err error) (string, int) {
	switch {
	case status >= 500 || (status == 0 && err != nil):
		return "ERROR", 17
	case status >= 400:
		return "WARN", 13
	}
	return "INFO", 9
}

func positive(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	return d
}

func durationToMillis(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(d) / float64(time.Millisecond)
}
