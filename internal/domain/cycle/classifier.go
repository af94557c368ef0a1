package cycle

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/andesalud/hiv-auth/internal/domain/claims"
)

// Classifier produces treatment-cycle verdicts. It holds no mutable state;
// concurrent Classify calls are independent.
type Classifier struct {
	registry MedicationRegistry
	history  DispensingHistory
	rules    []Rule
	logger   *zap.Logger
	tracer   trace.Tracer
}

// NewClassifier wires the classifier with the default decision table.
func NewClassifier(registry MedicationRegistry, history DispensingHistory, table SubstitutionTable, logger *zap.Logger) *Classifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Classifier{
		registry: registry,
		history:  history,
		rules:    DefaultRules(table),
		logger:   logger,
		tracer:   otel.Tracer("cycle-classifier"),
	}
}

// Classify evaluates the decision table for a (troquel, socio) pair.
// An unrecognized pair yields VerdictIndeterminate; only collaborator
// failures return an error, and they keep their kind unchanged.
func (c *Classifier) Classify(ctx context.Context, troquel, socio string) (Verdict, error) {
	ctx, span := c.tracer.Start(ctx, "classify_cycle",
		trace.WithAttributes(
			attribute.String("troquel", troquel),
			attribute.String("socio", socio),
		))
	defer span.End()

	snap, err := c.loadSnapshot(ctx, troquel, socio)
	if err != nil {
		span.RecordError(err)
		return 0, err
	}

	for _, rule := range c.rules {
		verdict, matched, err := rule.Evaluate(ctx, snap)
		if err != nil {
			span.RecordError(err)
			return 0, err
		}
		if matched {
			span.SetAttributes(
				attribute.String("rule", rule.Name()),
				attribute.Int("verdict", int(verdict)),
			)
			c.logger.Debug("cycle classified",
				zap.String("troquel", troquel),
				zap.String("socio", socio),
				zap.String("rule", rule.Name()),
				zap.Int("verdict", int(verdict)),
			)
			return verdict, nil
		}
	}

	span.SetAttributes(attribute.Int("verdict", int(VerdictIndeterminate)))
	return VerdictIndeterminate, nil
}

// IsHIVMedication is a direct passthrough to the registry, exposed for
// callers that need the raw predicate without a classification.
func (c *Classifier) IsHIVMedication(ctx context.Context, troquel string) (bool, error) {
	return c.registry.IsHIVMedication(ctx, troquel)
}

// loadSnapshot takes the single consistent read a classification runs on.
// An unknown member is absorbed into an empty snapshot so the decision table
// can fall through to Indeterminate; every other error propagates.
func (c *Classifier) loadSnapshot(ctx context.Context, troquel, socio string) (*Snapshot, error) {
	snap := &Snapshot{Troquel: troquel, Socio: socio}

	member, events, err := c.history.MemberSnapshot(ctx, socio)
	switch {
	case err == nil:
		snap.Member = member
		snap.Events = events
	case errors.Is(err, claims.ErrNotFound):
		// Unknown socio: classify against an empty history.
	default:
		return nil, err
	}

	ingredient, err := c.registry.ActiveIngredient(ctx, troquel)
	if err != nil {
		return nil, err
	}
	snap.Ingredient = ingredient

	return snap, nil
}

func isNotFound(err error) bool {
	return errors.Is(err, claims.ErrNotFound)
}
