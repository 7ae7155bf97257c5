package api

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	boardEventName   = "board.fetch"
	boardEventDomain = "kanban"
	tracerName       = "fieldboard-api/api"
	boardRoute       = "/kanban"
)

// boardRequestMetrics collects per-request timings for the board read path
// and emits them both as span attributes and as a structured log event.
type boardRequestMetrics struct {
	logger          *log.Logger
	span            trace.Span
	start           time.Time
	fetchDuration   time.Duration
	encodeDuration  time.Duration
	tasksReturned   int
	columnsReturned int
	clientFiltered  bool
	errorStage      string
}

func newBoardRequestMetrics(ctx context.Context, logger *log.Logger) (*boardRequestMetrics, context.Context) {
	m := &boardRequestMetrics{
		logger: logger,
		start:  time.Now(),
	}
	spanCtx, span := otel.Tracer(tracerName).Start(ctx, boardEventName)
	m.span = span
	return m, spanCtx
}

func (m *boardRequestMetrics) ObserveFetch(duration time.Duration) {
	if duration <= 0 {
		return
	}
	m.fetchDuration = duration
}

func (m *boardRequestMetrics) ObserveEncode(duration time.Duration) {
	if duration <= 0 {
		return
	}
	m.encodeDuration = duration
}

func (m *boardRequestMetrics) SetTasksReturned(count int) {
	if count < 0 {
		count = 0
	}
	m.tasksReturned = count
}

func (m *boardRequestMetrics) SetColumnsReturned(count int) {
	if count < 0 {
		count = 0
	}
	m.columnsReturned = count
}

func (m *boardRequestMetrics) SetClientFiltered(filtered bool) {
	m.clientFiltered = filtered
}

func (m *boardRequestMetrics) SetErrorStage(stage string) {
	if stage == "" {
		return
	}
	m.errorStage = stage
}

func (m *boardRequestMetrics) Log(status int, err error) {
	if m == nil {
		return
	}

	totalMs := durationToMillis(time.Since(m.start))
	attrs := map[string]any{
		"http.route":             boardRoute,
		"http.status_code":       status,
		"board.total_ms":         totalMs,
		"board.tasks_returned":   m.tasksReturned,
		"board.columns_returned": m.columnsReturned,
		"board.client_filtered":  m.clientFiltered,
	}
	if m.fetchDuration > 0 {
		attrs["board.fetch_ms"] = durationToMillis(m.fetchDuration)
	}
	if m.encodeDuration > 0 {
		attrs["board.encode_ms"] = durationToMillis(m.encodeDuration)
	}
	if m.errorStage != "" {
		attrs["board.error_stage"] = m.errorStage
	}
	if err != nil {
		attrs["error"] = err.Error()
	}

	if m.span != nil {
		m.span.SetAttributes(
			attribute.String("http.route", boardRoute),
			attribute.Int("http.status_code", status),
			attribute.Float64("board.total_ms", totalMs),
			attribute.Int("board.tasks_returned", m.tasksReturned),
			attribute.Int("board.columns_returned", m.columnsReturned),
			attribute.Bool("board.client_filtered", m.clientFiltered),
		)
		if m.errorStage != "" {
			m.span.SetAttributes(attribute.String("board.error_stage", m.errorStage))
		}
		if err != nil {
			m.span.SetStatus(codes.Error, err.Error())
			m.span.RecordError(err)
		}
		m.span.End()
	}

	if m.logger == nil {
		return
	}
	m.logger.WithFields(log.Fields{
		"event.name":    boardEventName,
		"event.domain":  boardEventDomain,
		"severity_text": "INFO",
		"attributes":    attrs,
	}).Info("observability.event")
}

func durationToMillis(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(d) / float64(time.Millisecond)
}
