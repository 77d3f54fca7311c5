package results

import (
	"encoding/json"
	"fmt"
	"sort"
)

// rawShape identifies which of the tolerated backend output layouts a raw
// document matches. Detection is priority-ordered; the first match wins.
type rawShape int

const (
	shapeUnknown rawShape = iota
	// shapeEnvelope is {"specifications": [...]} or {"specs": [...]}, the
	// common case from the in-process engine and the ifctester reporter.
	shapeEnvelope
	// shapeBare is a bare array of specification objects, or a mapping
	// keyed by specification id.
	shapeBare
	// shapeWrapped is {"results": ...} or {"validationResults": ...}
	// wrapping either of the above.
	shapeWrapped
)

// Normalize converts a raw backend outcome into canonical validation results.
// An unrecognized shape yields an empty slice; data is never fabricated.
func Normalize(raw json.RawMessage, modelNames []string) []ValidationResult {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil
	}

	modelName := ""
	if len(modelNames) > 0 {
		modelName = modelNames[0]
	}

	shape, inner := detectShape(v)
	switch shape {
	case shapeEnvelope, shapeBare, shapeWrapped:
		return parseSpecCollection(inner, modelName)
	default:
		return nil
	}
}

func detectShape(v any) (rawShape, any) {
	if arr, ok := v.([]any); ok {
		return shapeBare, arr
	}

	obj, ok := v.(map[string]any)
	if !ok {
		return shapeUnknown, nil
	}

	for _, key := range []string{"specifications", "specs"} {
		if inner, ok := obj[key]; ok {
			return shapeEnvelope, inner
		}
	}

	if looksLikeSpecMap(obj) {
		return shapeBare, obj
	}

	for _, key := range []string{"results", "validationResults"} {
		if inner, ok := obj[key]; ok {
			return shapeWrapped, inner
		}
	}

	return shapeUnknown, nil
}

// looksLikeSpecMap reports whether every value of obj is a specification-like
// object, i.e. the document is a bare id-keyed mapping.
func looksLikeSpecMap(obj map[string]any) bool {
	if len(obj) == 0 {
		return false
	}
	for _, v := range obj {
		entry, ok := v.(map[string]any)
		if !ok {
			return false
		}
		if !hasAnyKey(entry, "requirements", "applicabilities", "name", "title", "status") {
			return false
		}
	}
	return true
}

func parseSpecCollection(v any, modelName string) []ValidationResult {
	var out []ValidationResult

	switch specs := v.(type) {
	case []any:
		for i, entry := range specs {
			obj, ok := entry.(map[string]any)
			if !ok {
				continue
			}
			id := stringField(obj, "id", "specificationId")
			if id == "" {
				id = fmt.Sprintf("spec-%d", i)
			}
			out = append(out, parseSpecification(id, obj, modelName))
		}
	case map[string]any:
		for _, id := range sortedKeys(specs) {
			obj, ok := specs[id].(map[string]any)
			if !ok {
				continue
			}
			out = append(out, parseSpecification(id, obj, modelName))
		}
	}

	return out
}

func parseSpecification(id string, obj map[string]any, modelName string) ValidationResult {
	name := stringField(obj, "name", "title", "specificationName")
	if name == "" {
		name = "Specification " + id
	}

	var reqs []Requirement
	rawReqs := arrayField(obj, "requirements", "applicabilities")
	for i, entry := range rawReqs {
		reqObj, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		reqs = append(reqs, parseRequirement(reqObj, i))
	}

	return ValidationResult{
		SpecificationID:   id,
		SpecificationName: name,
		ModelName:         modelName,
		Requirements:      reqs,
		Summary:           recomputeSummary(reqs),
	}
}

// recomputeSummary derives counts from the requirement sequence. Upstream
// counters are never trusted.
func recomputeSummary(reqs []Requirement) Summary {
	s := Summary{Total: len(reqs)}
	for _, r := range reqs {
		if r.Status == StatusPassed {
			s.Passed++
		} else {
			s.Failed++
		}
	}
	return s
}

func parseRequirement(obj map[string]any, index int) Requirement {
	id := stringField(obj, "id", "requirementId")
	if id == "" {
		id = fmt.Sprintf("req-%d", index)
	}
	name := stringField(obj, "name", "title", "description")
	if name == "" {
		name = "Requirement " + id
	}

	var failed []FailedElement
	for _, entry := range arrayField(obj, "failedElements", "failures", "failed", "failed_entities") {
		elObj, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		failed = append(failed, parseFailedElement(elObj))
	}

	passedCount := intField(obj, "passedCount")
	if passedCount == 0 {
		passedCount = arrayLen(obj, "passed", "passed_entities")
	}
	failedCount := len(failed)
	if failedCount == 0 {
		failedCount = intField(obj, "failedCount")
	}

	return Requirement{
		ID:             id,
		Name:           name,
		Description:    stringField(obj, "description"),
		Status:         requirementStatus(obj, failed, failedCount),
		PassedCount:    passedCount,
		FailedCount:    failedCount,
		FailedElements: failed,
	}
}

// requirementStatus honors an explicit status field when present; otherwise a
// requirement is failed iff it carries failed elements or a positive failed
// count.
func requirementStatus(obj map[string]any, failed []FailedElement, failedCount int) Status {
	if s := stringField(obj, "status"); s != "" {
		if s == "passed" || s == "pass" {
			return StatusPassed
		}
		return StatusFailed
	}
	if len(failed) > 0 || failedCount > 0 {
		return StatusFailed
	}
	return StatusPassed
}

func parseFailedElement(obj map[string]any) FailedElement {
	id := stringField(obj, "id", "elementId", "guid", "global_id")
	if id == "" {
		id = "unknown"
	}
	elType := stringField(obj, "type", "elementType", "ifcType", "class")
	if elType == "" {
		elType = "Unknown"
	}
	reason := stringField(obj, "reason", "message", "error", "description")
	if reason == "" {
		reason = "Validation failed"
	}

	var props map[string]any
	for _, key := range []string{"properties", "attributes"} {
		if m, ok := obj[key].(map[string]any); ok {
			props = m
			break
		}
	}

	return FailedElement{
		ElementID:   id,
		ElementType: elType,
		Name:        stringField(obj, "name", "elementName"),
		Reason:      reason,
		Properties:  props,
	}
}

// sortedKeys keeps the output order of id-keyed mappings deterministic.
func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func stringField(obj map[string]any, keys ...string) string {
	for _, key := range keys {
		if s, ok := obj[key].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func intField(obj map[string]any, keys ...string) int {
	for _, key := range keys {
		if n, ok := obj[key].(float64); ok {
			return int(n)
		}
	}
	return 0
}

func arrayField(obj map[string]any, keys ...string) []any {
	for _, key := range keys {
		if arr, ok := obj[key].([]any); ok {
			return arr
		}
	}
	return nil
}

func arrayLen(obj map[string]any, keys ...string) int {
	for _, key := range keys {
		if arr, ok := obj[key].([]any); ok {
			return len(arr)
		}
	}
	return 0
}

func hasAnyKey(obj map[string]any, keys ...string) bool {
	for _, key := range keys {
		if _, ok := obj[key]; ok {
			return true
		}
	}
	return false
}
