package domain

import "sort"

// ConflictKind classifies a property-level merge conflict by the edit each
// side made relative to the common ancestor.
type ConflictKind string

const (
	ConflictBothModified    ConflictKind = "BOTH_MODIFIED"
	ConflictModifiedDeleted ConflictKind = "MODIFIED_DELETED"
	ConflictDeletedModified ConflictKind = "DELETED_MODIFIED"
	ConflictBothDeleted     ConflictKind = "BOTH_DELETED"
)

// PathValue carries a property value together with its existence. Exists
// false means the property is absent at that path; Exists true with a nil
// Value means the property is present and null. Collapsing the two would
// misclassify deletions as modifications.
type PathValue struct {
	Value  any  `json:"value"`
	Exists bool `json:"exists"`
}

func pathValueAt(payload map[string]any, path string) PathValue {
	value, exists := LookupPath(payload, path)
	return PathValue{Value: value, Exists: exists}
}

func (p PathValue) equal(other PathValue) bool {
	if p.Exists != other.Exists {
		return false
	}
	if !p.Exists {
		return true
	}
	return DeepEqual(p.Value, other.Value)
}

// Conflict is a single property path where the source and target branches
// made incompatible edits.
type Conflict struct {
	Path        string       `json:"path"`
	Kind        ConflictKind `json:"kind"`
	BaseValue   PathValue    `json:"base_value"`
	SourceValue PathValue    `json:"source_value"`
	TargetValue PathValue    `json:"target_value"`
}

// ConflictResult is the outcome of a three-way merge computation. When any
// conflict is present MergedPayload is nil and the caller must resolve
// manually; otherwise MergedPayload holds the auto-merged snapshot (which is
// nil for an auto-resolved deletion).
type ConflictResult struct {
	HasConflicts  bool           `json:"has_conflicts"`
	Conflicts     []Conflict     `json:"conflicts"`
	MergedPayload map[string]any `json:"merged_payload,omitempty"`
}

// DetectConflicts reconciles two divergent snapshots of the same entity
// against their common ancestor. Any of the three payloads may be nil,
// meaning the entity did not exist, or was deleted, on that side. Producing
// conflicts is the designed outcome for divergent data, never an error.
func DetectConflicts(base, source, target map[string]any) ConflictResult {
	// Deletion scenarios: entity existed in the ancestor.
	if base != nil {
		switch {
		case source == nil && target == nil:
			return ConflictResult{}
		case source == nil:
			return deletionConflicts(base, target, ConflictDeletedModified)
		case target == nil:
			return deletionConflicts(base, source, ConflictModifiedDeleted)
		}
	} else {
		// Creation scenarios: entity absent in the ancestor.
		switch {
		case source == nil && target == nil:
			return ConflictResult{}
		case source == nil:
			return ConflictResult{MergedPayload: ClonePayload(target)}
		case target == nil:
			return ConflictResult{MergedPayload: ClonePayload(source)}
		}
		// Created on both sides: merge against an empty ancestor.
		base = map[string]any{}
	}

	paths := unionPaths(base, source, target)
	merged := map[string]any{}
	var conflicts []Conflict

	for _, path := range paths {
		baseValue := pathValueAt(base, path)
		sourceValue := pathValueAt(source, path)
		targetValue := pathValueAt(target, path)

		sourceChanged := !sourceValue.equal(baseValue)
		targetChanged := !targetValue.equal(baseValue)

		var resolved PathValue
		switch {
		case !sourceChanged && !targetChanged:
			resolved = baseValue
		case sourceChanged && !targetChanged:
			resolved = sourceValue
		case targetChanged && !sourceChanged:
			resolved = targetValue
		case sourceValue.equal(targetValue):
			resolved = sourceValue
		default:
			conflicts = append(conflicts, Conflict{
				Path:        path,
				Kind:        classifyConflict(baseValue, sourceValue, targetValue),
				BaseValue:   baseValue,
				SourceValue: sourceValue,
				TargetValue: targetValue,
			})
			continue
		}

		if resolved.Exists {
			WritePath(merged, path, cloneValue(resolved.Value))
		}
	}

	if len(conflicts) > 0 {
		return ConflictResult{HasConflicts: true, Conflicts: conflicts}
	}
	return ConflictResult{MergedPayload: merged}
}

func classifyConflict(base, source, target PathValue) ConflictKind {
	switch {
	case !source.Exists && !target.Exists && base.Exists:
		return ConflictBothDeleted
	case source.Exists && !target.Exists:
		return ConflictModifiedDeleted
	case !source.Exists && target.Exists:
		return ConflictDeletedModified
	default:
		return ConflictBothModified
	}
}

// deletionConflicts reports every property on the surviving side when exactly
// one branch deleted the entity. The deletion never auto-resolves; the merged
// payload stays nil.
func deletionConflicts(base, survivor map[string]any, kind ConflictKind) ConflictResult {
	paths := unionPaths(base, survivor)
	conflicts := make([]Conflict, 0, len(paths))
	for _, path := range paths {
		survivorValue := pathValueAt(survivor, path)
		if !survivorValue.Exists {
			continue
		}
		conflict := Conflict{
			Path:      path,
			Kind:      kind,
			BaseValue: pathValueAt(base, path),
		}
		if kind == ConflictDeletedModified {
			conflict.TargetValue = survivorValue
		} else {
			conflict.SourceValue = survivorValue
		}
		conflicts = append(conflicts, conflict)
	}
	return ConflictResult{HasConflicts: len(conflicts) > 0, Conflicts: conflicts}
}

func unionPaths(payloads ...map[string]any) []string {
	seen := map[string]struct{}{}
	for _, payload := range payloads {
		for _, path := range FlattenPaths(payload) {
			seen[path] = struct{}{}
		}
	}
	union := make([]string, 0, len(seen))
	for path := range seen {
		union = append(union, path)
	}
	sort.Strings(union)
	return union
}
