package courier

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultSpecVersion is the envelope format version stamped on new envelopes.
const DefaultSpecVersion = "1.0"

// ContentType identifies the encoding of an envelope payload.
type ContentType string

// ContentTypeJSON is the only supported payload encoding.
const ContentTypeJSON ContentType = "application/json"

// Envelope wraps a domain payload with the provenance attached to it on the wire.
//
// ID is stable for the lifetime of one publish attempt and is reused verbatim when
// the message falls through to the outbox.
type Envelope[T any] struct {
	ID              string
	Data            T
	Source          string
	Type            string
	SpecVersion     string
	DataContentType ContentType
	Time            time.Time
}

// EnvelopeOption is a function that configures an Envelope.
type EnvelopeOption func(*envelopeOptions)

type envelopeOptions struct {
	id          string
	time        time.Time
	specVersion string
	contentType ContentType
}

// WithID overrides the generated envelope id.
func WithID(id string) EnvelopeOption {
	return func(o *envelopeOptions) {
		o.id = id
	}
}

// WithTime overrides the construction time.
func WithTime(t time.Time) EnvelopeOption {
	return func(o *envelopeOptions) {
		o.time = t
	}
}

// WithSpecVersion overrides DefaultSpecVersion.
func WithSpecVersion(version string) EnvelopeOption {
	return func(o *envelopeOptions) {
		o.specVersion = version
	}
}

// WithContentType sets the payload encoding. Only ContentTypeJSON is accepted.
func WithContentType(contentType ContentType) EnvelopeOption {
	return func(o *envelopeOptions) {
		o.contentType = contentType
	}
}

// NewEnvelope creates an Envelope for data.
// If not overridden, the id is a new UUID v4 and the time is the current UTC time.
func NewEnvelope[T any](data T, source, eventType string, opts ...EnvelopeOption) (*Envelope[T], error) {
	if isNil(data) {
		return nil, fmt.Errorf("%w: payload is nil", ErrInvalidArgument)
	}
	if strings.TrimSpace(source) == "" {
		return nil, fmt.Errorf("%w: source is empty", ErrInvalidArgument)
	}
	if strings.TrimSpace(eventType) == "" {
		return nil, fmt.Errorf("%w: type is empty", ErrInvalidArgument)
	}

	o := envelopeOptions{
		specVersion: DefaultSpecVersion,
		contentType: ContentTypeJSON,
	}
	for _, opt := range opts {
		opt(&o)
	}

	if o.contentType != ContentTypeJSON {
		return nil, fmt.Errorf("%w: unsupported content type %q", ErrInvalidArgument, o.contentType)
	}
	if o.id == "" {
		o.id = uuid.NewString()
	}
	if o.time.IsZero() {
		o.time = time.Now().UTC()
	}
	if o.specVersion == "" {
		o.specVersion = DefaultSpecVersion
	}

	return &Envelope[T]{
		ID:              o.id,
		Data:            data,
		Source:          source,
		Type:            eventType,
		SpecVersion:     o.specVersion,
		DataContentType: o.contentType,
		Time:            o.time,
	}, nil
}

func isNil(v any) bool {
	if v == nil {
		return true
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface, reflect.Chan, reflect.Func:
		return rv.IsNil()
	default:
		return false
	}
}

// Outgoing is a publishable envelope. It is implemented by *Envelope[T] only.
type Outgoing interface {
	meta() envelopeMeta
	payload() any
	isNil() bool
}

func (e *Envelope[T]) meta() envelopeMeta {
	return envelopeMeta{
		id:          e.ID,
		source:      e.Source,
		eventType:   e.Type,
		specVersion: e.SpecVersion,
		contentType: e.DataContentType,
		time:        e.Time,
	}
}

func (e *Envelope[T]) payload() any {
	return e.Data
}

func (e *Envelope[T]) isNil() bool {
	return e == nil
}
