package decision

import (
	"encoding/json"
	"regexp"
	"strings"
	"sync"
)

// evalRoot is the document conditions address into. It is rebuilt after each
// applied rule so later rules observe earlier mutations of the decision.
type evalRoot struct {
	doc map[string]interface{}
}

func newEvalRoot(input Input, decision *Result) *evalRoot {
	doc := map[string]interface{}{
		"ctx":           toDocument(input.Ctx),
		"understanding": toDocument(input.Understanding),
		"decision":      toDocument(decision),
	}
	return &evalRoot{doc: doc}
}

func (r *evalRoot) refreshDecision(decision *Result) {
	r.doc["decision"] = toDocument(decision)
}

// toDocument flattens a typed struct into the generic form the dotted-path
// walker understands. Rules loaded from the database address json field
// names, so the walk has to go through the same tags.
func toDocument(v interface{}) map[string]interface{} {
	raw, err := json.Marshal(v)
	if err != nil {
		return map[string]interface{}{}
	}
	var doc map[string]interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return map[string]interface{}{}
	}
	return doc
}

// lookup walks a dotted path. Missing segments return (nil, false).
func (r *evalRoot) lookup(path string) (interface{}, bool) {
	var current interface{} = r.doc
	for _, key := range strings.Split(path, ".") {
		node, ok := current.(map[string]interface{})
		if !ok {
			return nil, false
		}
		current, ok = node[key]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// matches evaluates one condition. Type mismatches fail the condition rather
// than erroring; a rule that addresses a missing or differently typed field
// simply does not fire.
func (r *evalRoot) matches(cond Condition) bool {
	fieldValue, found := r.lookup(cond.Field)

	switch cond.Operator {
	case OpEq:
		return found && looseEqual(fieldValue, cond.Value)
	case OpNeq:
		return !found || !looseEqual(fieldValue, cond.Value)
	case OpGt, OpGte, OpLt, OpLte:
		left, lok := asNumber(fieldValue)
		right, rok := asNumber(cond.Value)
		if !found || !lok || !rok {
			return false
		}
		switch cond.Operator {
		case OpGt:
			return left > right
		case OpGte:
			return left >= right
		case OpLt:
			return left < right
		default:
			return left <= right
		}
	case OpContains:
		return found && arrayContains(fieldValue, cond.Value)
	case OpNotContains:
		return found && !arrayContains(fieldValue, cond.Value)
	case OpMatches:
		s, ok := fieldValue.(string)
		if !found || !ok {
			return false
		}
		pattern, ok := cond.Value.(string)
		if !ok {
			return false
		}
		re, err := compilePattern(pattern)
		if err != nil {
			return false
		}
		return re.MatchString(s)
	case OpIn:
		items, ok := cond.Value.([]interface{})
		if !ok {
			return false
		}
		for _, item := range items {
			if looseEqual(fieldValue, item) {
				return true
			}
		}
		return false
	case OpNotIn:
		items, ok := cond.Value.([]interface{})
		if !ok {
			return false
		}
		for _, item := range items {
			if looseEqual(fieldValue, item) {
				return false
			}
		}
		return true
	case OpExists:
		if arr, ok := fieldValue.([]interface{}); ok {
			return len(arr) > 0
		}
		return found && fieldValue != nil
	case OpNotExists:
		if arr, ok := fieldValue.([]interface{}); ok {
			return len(arr) == 0
		}
		return !found || fieldValue == nil
	default:
		return false
	}
}

// looseEqual compares across the numeric types JSON decoding produces.
func looseEqual(a, b interface{}) bool {
	if an, aok := asNumber(a); aok {
		if bn, bok := asNumber(b); bok {
			return an == bn
		}
		return false
	}
	return a == b
}

func asNumber(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func arrayContains(fieldValue, needle interface{}) bool {
	items, ok := fieldValue.([]interface{})
	if !ok {
		return false
	}
	for _, item := range items {
		if looseEqual(item, needle) {
			return true
		}
	}
	return false
}

// pattern cache: rules re-evaluate the same regexes on every message.
var (
	patternMu    sync.RWMutex
	patternCache = make(map[string]*regexp.Regexp)
)

func compilePattern(pattern string) (*regexp.Regexp, error) {
	patternMu.RLock()
	re, ok := patternCache[pattern]
	patternMu.RUnlock()
	if ok {
		return re, nil
	}

	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return nil, err
	}

	patternMu.Lock()
	patternCache[pattern] = re
	patternMu.Unlock()
	return re, nil
}
