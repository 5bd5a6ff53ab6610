package capture

import (
	"fmt"
	"maps"
	"slices"

	"github.com/bngseg/collector/pkg/core"
)

// Pair is a base image and its annotated counterpart.
type Pair[T any] struct {
	Base      T `json:"base"`
	Annotated T `json:"annotated"`
}

// PairImages joins base and annotated images by key. Both maps must hold
// exactly the same keys; the first key (in sorted order) found on only one
// side is reported as ErrMissingPair.
func PairImages[T any](base, annotated map[string]T) (map[string]Pair[T], error) {
	for _, k := range slices.Sorted(maps.Keys(base)) {
		if _, ok := annotated[k]; !ok {
			return nil, fmt.Errorf("%w: %q has a base image but no annotated image", core.ErrMissingPair, k)
		}
	}
	for _, k := range slices.Sorted(maps.Keys(annotated)) {
		if _, ok := base[k]; !ok {
			return nil, fmt.Errorf("%w: %q has an annotated image but no base image", core.ErrMissingPair, k)
		}
	}

	paired := make(map[string]Pair[T], len(base))
	for k, b := range base {
		paired[k] = Pair[T]{Base: b, Annotated: annotated[k]}
	}
	return paired, nil
}
