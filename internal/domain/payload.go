package domain

import (
	"sort"
	"strings"
)

// Payload snapshots are JSON-shaped values: nil, bool, float64, string,
// []any, or map[string]any, as produced by encoding/json. Property paths are
// dot-separated strings naming leaves; nested objects are descended into,
// while arrays and scalars (including null) are leaves.

// FlattenPaths returns the sorted set of leaf property paths in a payload.
func FlattenPaths(payload map[string]any) []string {
	acc := map[string]struct{}{}
	flattenInto("", payload, acc)

	paths := make([]string, 0, len(acc))
	for path := range acc {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths
}

func flattenInto(prefix string, value any, acc map[string]struct{}) {
	nested, ok := value.(map[string]any)
	if !ok || len(nested) == 0 {
		if prefix != "" {
			acc[prefix] = struct{}{}
		}
		return
	}
	for key, child := range nested {
		next := key
		if prefix != "" {
			next = prefix + "." + key
		}
		flattenInto(next, child, acc)
	}
}

// LookupPath resolves a dot-separated path inside a payload. The boolean
// distinguishes an absent property from one whose value is null.
func LookupPath(payload map[string]any, path string) (any, bool) {
	if payload == nil {
		return nil, false
	}
	segments := strings.Split(path, ".")
	current := any(payload)
	for i, segment := range segments {
		object, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		value, exists := object[segment]
		if !exists {
			return nil, false
		}
		if i == len(segments)-1 {
			return value, true
		}
		current = value
	}
	return nil, false
}

// WritePath stores a value at a dot-separated path, creating intermediate
// objects as needed.
func WritePath(payload map[string]any, path string, value any) {
	segments := strings.Split(path, ".")
	current := payload
	for _, segment := range segments[:len(segments)-1] {
		child, ok := current[segment].(map[string]any)
		if !ok {
			child = map[string]any{}
			current[segment] = child
		}
		current = child
	}
	current[segments[len(segments)-1]] = value
}

// DeepEqual compares two payload values structurally: order-sensitive for
// arrays, key-set and value comparison for objects, numeric comparison
// across integer and float representations.
func DeepEqual(a, b any) bool {
	switch left := a.(type) {
	case map[string]any:
		right, ok := b.(map[string]any)
		if !ok || len(left) != len(right) {
			return false
		}
		for key, leftValue := range left {
			rightValue, exists := right[key]
			if !exists || !DeepEqual(leftValue, rightValue) {
				return false
			}
		}
		return true
	case []any:
		right, ok := b.([]any)
		if !ok || len(left) != len(right) {
			return false
		}
		for i := range left {
			if !DeepEqual(left[i], right[i]) {
				return false
			}
		}
		return true
	case nil:
		return b == nil
	default:
		if leftNum, ok := asNumber(a); ok {
			rightNum, rightOK := asNumber(b)
			return rightOK && leftNum == rightNum
		}
		return a == b
	}
}

func asNumber(value any) (float64, bool) {
	switch typed := value.(type) {
	case float64:
		return typed, true
	case float32:
		return float64(typed), true
	case int:
		return float64(typed), true
	case int32:
		return float64(typed), true
	case int64:
		return float64(typed), true
	default:
		return 0, false
	}
}

// ClonePayload deep-copies a payload so callers can mutate their copy freely.
// A nil payload stays nil (a tombstone marker, not an empty object).
func ClonePayload(payload map[string]any) map[string]any {
	if payload == nil {
		return nil
	}
	cloned, _ := cloneValue(payload).(map[string]any)
	return cloned
}

func cloneValue(value any) any {
	switch typed := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(typed))
		for key, child := range typed {
			out[key] = cloneValue(child)
		}
		return out
	case []any:
		out := make([]any, len(typed))
		for i, child := range typed {
			out[i] = cloneValue(child)
		}
		return out
	default:
		return typed
	}
}
