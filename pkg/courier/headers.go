package courier

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/trace"
)

// Wire header keys attached to every published message.
const (
	HeaderSpecVersion     = "spec-version"
	HeaderID              = "id"
	HeaderSource          = "source"
	HeaderType            = "type"
	HeaderTime            = "time"
	HeaderDataContentType = "data-content-type"
	HeaderTraceID         = "trace-id"
)

// TraceIDFromContext returns the trace id of the span in ctx, or "" without a valid span.
func TraceIDFromContext(ctx context.Context) string {
	spanContext := trace.SpanFromContext(ctx).SpanContext()
	if !spanContext.IsValid() {
		return ""
	}
	return spanContext.TraceID().String()
}

type envelopeMeta struct {
	id          string
	source      string
	eventType   string
	specVersion string
	contentType ContentType
	time        time.Time
	traceID     string
}

func (m envelopeMeta) headers() []Header {
	return []Header{
		{Key: HeaderSpecVersion, Value: []byte(m.specVersion)},
		{Key: HeaderID, Value: []byte(m.id)},
		{Key: HeaderSource, Value: []byte(m.source)},
		{Key: HeaderType, Value: []byte(m.eventType)},
		{Key: HeaderTime, Value: []byte(m.time.Format(time.RFC3339Nano))},
		{Key: HeaderDataContentType, Value: []byte(m.contentType)},
		{Key: HeaderTraceID, Value: []byte(m.traceID)},
	}
}

// HeaderValue returns the value of the first header named key.
func HeaderValue(headers []Header, key string) (string, bool) {
	for _, h := range headers {
		if h.Key == key {
			return string(h.Value), true
		}
	}
	return "", false
}
