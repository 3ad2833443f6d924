package condition

// EvalContext resolves dotted field paths to values.
type EvalContext interface {
	Resolve(path []string) (any, bool)
}

// MapContext resolves paths through nested maps.
type MapContext map[string]any

func (m MapContext) Resolve(path []string) (any, bool) {
	if len(path) == 0 {
		return nil, false
	}
	cur := map[string]any(m)
	last := len(path) - 1
	for _, key := range path[:last] {
		switch next := cur[key].(type) {
		case map[string]any:
			cur = next
		case MapContext:
			cur = next
		default:
			return nil, false
		}
	}
	v, ok := cur[path[last]]
	return v, ok
}
