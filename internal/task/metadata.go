package task

// Metadata values arrive either as native Go slices/maps or as their JSON
// round-tripped shapes ([]any, map[string]any), depending on whether the
// instance was freshly created or loaded from a store. These helpers accept
// both.

func metaBool(md map[string]any, key string) bool {
	if md == nil {
		return false
	}
	v, _ := md[key].(bool)
	return v
}

func metaContains(md map[string]any, key, want string) bool {
	if md == nil {
		return false
	}
	switch list := md[key].(type) {
	case []string:
		for _, s := range list {
			if s == want {
				return true
			}
		}
	case []any:
		for _, item := range list {
			if s, ok := item.(string); ok && s == want {
				return true
			}
		}
	}
	return false
}

// metaDecision looks up a per-task boolean decision in a nested map. The
// second return reports whether an explicit decision exists.
func metaDecision(md map[string]any, key, taskID string) (bool, bool) {
	if md == nil {
		return false, false
	}
	switch decisions := md[key].(type) {
	case map[string]bool:
		v, ok := decisions[taskID]
		return v, ok
	case map[string]any:
		raw, ok := decisions[taskID]
		if !ok {
			return false, false
		}
		v, isBool := raw.(bool)
		return v, isBool
	}
	return false, false
}
