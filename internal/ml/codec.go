package ml

import (
	"encoding/json"
	"fmt"
)

// FormatDecisionTreeV1 tags serialized trees. Blobs carrying another tag
// are rejected rather than guessed at.
const FormatDecisionTreeV1 = "decision_tree/v1"

type envelope struct {
	Format string        `json:"format"`
	Tree   *DecisionTree `json:"tree"`
}

// Marshal serializes the tree into an opaque blob.
func (dt *DecisionTree) Marshal() ([]byte, error) {
	if err := dt.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(envelope{Format: FormatDecisionTreeV1, Tree: dt})
}

// Unmarshal restores a tree from a blob produced by Marshal. Every
// structural problem is reported as an error; a returned tree is safe to
// Predict with.
func Unmarshal(data []byte) (*DecisionTree, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty blob", ErrInvalidModel)
	}
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidModel, err)
	}
	if env.Format != FormatDecisionTreeV1 {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedBlob, env.Format)
	}
	if err := env.Tree.Validate(); err != nil {
		return nil, err
	}
	return env.Tree, nil
}

// Validate checks that every split references an existing feature and has
// both children, that leaves carry a known class, and that the tree is no
// deeper than MaxDepth.
func (dt *DecisionTree) Validate() error {
	if dt == nil || dt.Root == nil {
		return fmt.Errorf("%w: missing root", ErrInvalidModel)
	}
	if dt.NumFeatures <= 0 {
		return fmt.Errorf("%w: num_features %d", ErrInvalidModel, dt.NumFeatures)
	}
	if len(dt.Classes) == 0 {
		return fmt.Errorf("%w: no classes", ErrInvalidModel)
	}
	known := make(map[int]struct{}, len(dt.Classes))
	for _, c := range dt.Classes {
		known[c] = struct{}{}
	}
	return dt.validateNode(dt.Root, 0, known)
}

func (dt *DecisionTree) validateNode(n *Node, depth int, known map[int]struct{}) error {
	if n == nil {
		return fmt.Errorf("%w: missing child at depth %d", ErrInvalidModel, depth)
	}
	if n.Leaf {
		if _, ok := known[n.Class]; !ok {
			return fmt.Errorf("%w: leaf class %d not in %v", ErrInvalidModel, n.Class, dt.Classes)
		}
		return nil
	}
	if dt.MaxDepth > 0 && depth >= dt.MaxDepth {
		return fmt.Errorf("%w: split below max depth %d", ErrInvalidModel, dt.MaxDepth)
	}
	if n.Feature < 0 || n.Feature >= dt.NumFeatures {
		return fmt.Errorf("%w: split on feature %d of %d", ErrInvalidModel, n.Feature, dt.NumFeatures)
	}
	if err := dt.validateNode(n.Left, depth+1, known); err != nil {
		return err
	}
	return dt.validateNode(n.Right, depth+1, known)
}
