package observability

import (
	"context"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jkaninda/pyguard-terminal/internal/security"
	"github.com/jkaninda/pyguard-terminal/internal/terminal"
	"github.com/jkaninda/pyguard-terminal/internal/validator"
)

// AdmissionGate is the admission capability the wrapper instruments.
type AdmissionGate interface {
	Check(raw string) security.Verdict
}

// CommandRunner is the execution capability the wrapper instruments.
type CommandRunner interface {
	Execute(ctx context.Context, command string) <-chan terminal.Event
}

// --- InstrumentedGate ---

// InstrumentedGate wraps an admission gate with metrics and tracing.
type InstrumentedGate struct {
	inner   AdmissionGate
	metrics *MetricsCollector
	tracer  trace.Tracer
}

// NewInstrumentedGate wraps an admission gate with observability.
func NewInstrumentedGate(inner AdmissionGate, metrics *MetricsCollector, ts *TracerSetup) *InstrumentedGate {
	var tracer trace.Tracer
	if ts != nil {
		tracer = ts.Tracer()
	}
	return &InstrumentedGate{
		inner:   inner,
		metrics: metrics,
		tracer:  tracer,
	}
}

func (g *InstrumentedGate) Check(raw string) security.Verdict {
	if g.tracer != nil {
		_, span := g.tracer.Start(context.Background(), "security.check")
		defer span.End()
	}

	v := g.inner.Check(raw)

	if g.metrics != nil {
		result := "allowed"
		if !v.Allowed {
			result = "denied"
		}
		g.metrics.SecurityChecksTotal.WithLabelValues(result).Inc()
	}
	return v
}

// --- InstrumentedValidator ---

// InstrumentedValidator wraps a code validator with metrics and tracing.
type InstrumentedValidator struct {
	inner   validator.CodeValidator
	metrics *MetricsCollector
	tracer  trace.Tracer
}

// NewInstrumentedValidator wraps a code validator with observability.
func NewInstrumentedValidator(inner validator.CodeValidator, metrics *MetricsCollector, ts *TracerSetup) *InstrumentedValidator {
	var tracer trace.Tracer
	if ts != nil {
		tracer = ts.Tracer()
	}
	return &InstrumentedValidator{
		inner:   inner,
		metrics: metrics,
		tracer:  tracer,
	}
}

func (v *InstrumentedValidator) Validate(source string) []validator.Issue {
	if v.tracer != nil {
		_, span := v.tracer.Start(context.Background(), "validator.validate",
			trace.WithAttributes(
				attribute.Int("validator.source_bytes", len(source)),
			))
		defer span.End()
	}

	issues := v.inner.Validate(source)

	if v.metrics != nil {
		blocking := false
		for _, is := range issues {
			v.metrics.ValidationIssuesTotal.WithLabelValues(string(is.Kind)).Inc()
			if is.Severity == validator.SeverityError {
				blocking = true
			}
		}
		if blocking {
			v.metrics.ValidationBlocksTotal.Inc()
		}
	}
	return issues
}

// --- InstrumentedRunner ---

// InstrumentedRunner wraps a command runner with metrics and tracing. Events
// are relayed unchanged; the outcome and duration are recorded when the
// stream ends.
type InstrumentedRunner struct {
	inner   CommandRunner
	metrics *MetricsCollector
	tracer  trace.Tracer
}

// NewInstrumentedRunner wraps a command runner with observability.
func NewInstrumentedRunner(inner CommandRunner, metrics *MetricsCollector, ts *TracerSetup) *InstrumentedRunner {
	var tracer trace.Tracer
	if ts != nil {
		tracer = ts.Tracer()
	}
	return &InstrumentedRunner{
		inner:   inner,
		metrics: metrics,
		tracer:  tracer,
	}
}

func (r *InstrumentedRunner) Execute(ctx context.Context, command string) <-chan terminal.Event {
	var span trace.Span
	if r.tracer != nil {
		ctx, span = r.tracer.Start(ctx, "terminal.execute")
	}

	start := time.Now()
	in := r.inner.Execute(ctx, command)

	out := make(chan terminal.Event)
	go func() {
		defer close(out)

		outcome := "complete"
		for ev := range in {
			switch ev.Kind {
			case terminal.EventTimeout:
				outcome = "timeout"
			case terminal.EventNotFound:
				outcome = "not_found"
			case terminal.EventError:
				outcome = "error"
			}
			out <- ev
		}

		duration := time.Since(start).Seconds()
		if r.metrics != nil {
			r.metrics.CommandDuration.WithLabelValues(outcome).Observe(duration)
		}
		if span != nil {
			span.SetAttributes(attribute.String("terminal.outcome", outcome))
			span.End()
		}
	}()
	return out
}

// --- Compile-time interface checks ---

var (
	_ AdmissionGate           = (*InstrumentedGate)(nil)
	_ validator.CodeValidator = (*InstrumentedValidator)(nil)
	_ CommandRunner           = (*InstrumentedRunner)(nil)
)

// statusCode returns the HTTP status code as a string for metric labels.
func statusCode(code int) string {
	return strconv.Itoa(code)
}
