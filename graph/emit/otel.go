package emit

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// OTelEmitter turns each event into a span, named after event.Msg, with
// run/tick/node identity and event.Meta as attributes. Spans are instant
// (started and ended immediately) since events mark points in time, not
// durations.
type OTelEmitter struct {
	tracer trace.Tracer
}

// NewOTelEmitter creates an OTelEmitter from an existing tracer, e.g.
// otel.Tracer("agx").
func NewOTelEmitter(tracer trace.Tracer) *OTelEmitter {
	return &OTelEmitter{tracer: tracer}
}

func (o *OTelEmitter) Emit(event Event) {
	_, span := o.tracer.Start(context.Background(), event.Msg)
	defer span.End()
	o.annotate(span, event)
}

func (o *OTelEmitter) EmitBatch(ctx context.Context, events []Event) error {
	for _, event := range events {
		_, span := o.tracer.Start(ctx, event.Msg)
		o.annotate(span, event)
		span.End()
	}
	return nil
}

func (o *OTelEmitter) annotate(span trace.Span, event Event) {
	span.SetAttributes(
		attribute.String("agx.run_id", event.RunID),
		attribute.Int("agx.tick", event.Tick),
		attribute.String("agx.node_id", event.NodeID),
	)
	o.addMetadataAttributes(span, event.Meta)
	if err, ok := event.Meta["error"].(string); ok {
		span.SetStatus(codes.Error, err)
		span.RecordError(fmt.Errorf("%s", err))
	}
}

// Flush forces export of any pending spans by calling ForceFlush on the
// global tracer provider, if it supports it (noop providers don't).
func (o *OTelEmitter) Flush(ctx context.Context) error {
	type flusher interface {
		ForceFlush(context.Context) error
	}
	if f, ok := otel.GetTracerProvider().(flusher); ok {
		return f.ForceFlush(ctx)
	}
	return nil
}

// metaAttrNames maps the dispatch metadata keys the execution loop emits
// (see engine.go's node_dispatched events) onto namespaced attribute names.
// Keys outside this table pass through under their own name.
var metaAttrNames = map[string]string{
	"tokens_in":  "agx.llm.tokens_in",
	"tokens_out": "agx.llm.tokens_out",
	"cost_usd":   "agx.llm.cost_usd",
	"model":      "agx.llm.model",
	"latency_ms": "agx.node.latency_ms",
}

func (o *OTelEmitter) addMetadataAttributes(span trace.Span, meta map[string]interface{}) {
	for key, value := range meta {
		attrKey := key
		if named, ok := metaAttrNames[key]; ok {
			attrKey = named
		}
		switch v := value.(type) {
		case string:
			span.SetAttributes(attribute.String(attrKey, v))
		case int:
			span.SetAttributes(attribute.Int(attrKey, v))
		case int64:
			span.SetAttributes(attribute.Int64(attrKey, v))
		case float64:
			span.SetAttributes(attribute.Float64(attrKey, v))
		case bool:
			span.SetAttributes(attribute.Bool(attrKey, v))
		case time.Duration:
			span.SetAttributes(attribute.Int64(attrKey, int64(v/time.Millisecond)))
		default:
			span.SetAttributes(attribute.String(attrKey, fmt.Sprintf("%v", v)))
		}
	}
}
