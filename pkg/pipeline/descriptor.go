package pipeline

import (
	"context"
	"path"

	"github.com/flywheeldev/hotswap/pkg/runtimeiface"
)

// TransformFunc receives the bytes currently queued for (re)definition and
// returns the bytes to carry forward. Abstaining means returning source
// unmodified with a nil error.
type TransformFunc func(ctx context.Context, identity runtimeiface.ClassIdentity, source []byte) ([]byte, error)

// TransformerDescriptor is the declarative record a plugin registers with
// the pipeline.
type TransformerDescriptor struct {
	Name string
	// Pattern is the target class-name pattern: a literal name, a
	// path.Match glob, or "all".
	Pattern string
	// Priority orders transformers that match the same class; lower runs
	// first. Ties keep registration order (stable sort).
	Priority int
	// EveryLoad, when false, means this transformer only runs the first
	// time a given ClassIdentity is seen by the pipeline; subsequent loads
	// of the same identity skip it.
	EveryLoad bool
	Transform TransformFunc
}

const allPattern = "all"

// specificity ranks how precisely pattern targets name: exact > glob > all.
// ok is false when pattern does not match name at all.
func specificity(pattern, name string) (rank int, ok bool) {
	switch {
	case pattern == allPattern:
		return 0, true
	case pattern == name:
		return 2, true
	default:
		matched, err := path.Match(pattern, name)
		if err == nil && matched {
			return 1, true
		}
		return 0, false
	}
}
