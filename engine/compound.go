package engine

import (
	"context"
	"log/slog"

	"progresskit/core"
)

// ConditionEvaluator evaluates unlock-condition trees by recursive descent.
// Compound nodes (and/or/not) short-circuit; leaves dispatch through the
// injected evaluator set. Trees are small, so no memoization is done.
//
// An unrecognized leaf tag is a normal false outcome. A compound node
// missing its structural field, or a leaf missing a required payload field,
// returns an error to the caller.
type ConditionEvaluator struct {
	leaves *EvaluatorSet
	logger *slog.Logger
}

// NewConditionEvaluator builds an evaluator over an explicit leaf set.
func NewConditionEvaluator(leaves *EvaluatorSet, logger *slog.Logger) *ConditionEvaluator {
	if leaves == nil {
		leaves = DefaultEvaluators()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ConditionEvaluator{leaves: leaves, logger: logger}
}

// Evaluate resolves a condition tree against a user's current state.
func (c *ConditionEvaluator) Evaluate(ctx context.Context, state StateReader, user core.UserID, node core.ConditionNode) (bool, error) {
	switch node.Type {
	case core.TagAnd:
		children, err := node.Children()
		if err != nil {
			return false, err
		}
		// empty conjunction is vacuously true
		for _, child := range children {
			ok, err := c.Evaluate(ctx, state, user, child)
			if err != nil {
				return false, err
			}
			if !ok {
				return false, nil
			}
		}
		return true, nil

	case core.TagOr:
		children, err := node.Children()
		if err != nil {
			return false, err
		}
		for _, child := range children {
			ok, err := c.Evaluate(ctx, state, user, child)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil

	case core.TagNot:
		child, err := node.Child()
		if err != nil {
			return false, err
		}
		ok, err := c.Evaluate(ctx, state, user, child)
		if err != nil {
			return false, err
		}
		return !ok, nil
	}

	leaf, ok := c.leaves.Leaf(node.Type)
	if !ok {
		c.logger.Debug("unrecognized condition type", "type", node.Type)
		return false, nil
	}
	return leaf.Evaluate(ctx, state, user, node)
}
