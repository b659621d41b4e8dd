package federation

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
)

// placeholderPattern matches positional template references such as {0} in
// local clause values.
var placeholderPattern = regexp.MustCompile(`\{(\d+)\}`)

// ValidateMappingRules checks the structural contract of a mapping document.
// It is pure: no I/O, no mutation. A nil error means the document may be
// persisted.
func ValidateMappingRules(rules []MappingRule) error {
	if len(rules) == 0 {
		return &ValidationError{Resource: "mapping", Detail: "rules must be a non-empty list"}
	}

	for i, rule := range rules {
		if err := validateRule(i, rule); err != nil {
			return err
		}
	}
	return nil
}

func validateRule(index int, rule MappingRule) error {
	if len(rule.Remote) == 0 {
		return ruleError(index, "remote clause must not be empty")
	}
	if len(rule.Local) == 0 {
		return ruleError(index, "local clause must not be empty")
	}

	// Conditions without any_one_of/not_any_of yield positional captures
	// consumed by {N} placeholders in the local clause.
	captures := 0
	for j, cond := range rule.Remote {
		if err := validateCondition(index, j, cond); err != nil {
			return err
		}
		if len(cond.AnyOneOf) == 0 && len(cond.NotAnyOf) == 0 {
			captures++
		}
	}

	for _, assignment := range rule.Local {
		if err := validatePlaceholders(index, assignment, captures); err != nil {
			return err
		}
	}
	return nil
}

func validateCondition(rule, index int, cond RemoteCondition) error {
	if cond.Type == "" {
		return conditionError(rule, index, "type is required")
	}
	if len(cond.AnyOneOf) > 0 && len(cond.NotAnyOf) > 0 {
		return conditionError(rule, index, "any_one_of and not_any_of are mutually exclusive")
	}
	if len(cond.Whitelist) > 0 && len(cond.Blacklist) > 0 {
		return conditionError(rule, index, "whitelist and blacklist are mutually exclusive")
	}
	matching := len(cond.AnyOneOf) > 0 || len(cond.NotAnyOf) > 0
	filtering := len(cond.Whitelist) > 0 || len(cond.Blacklist) > 0
	if matching && filtering {
		return conditionError(rule, index, "matching and filtering modes are mutually exclusive")
	}
	if cond.Regex != nil && *cond.Regex && !matching {
		return conditionError(rule, index, "regex requires any_one_of or not_any_of")
	}
	return nil
}

// validatePlaceholders verifies every {N} reference in the assignment is
// satisfiable by a positional capture from the remote clause.
func validatePlaceholders(rule int, assignment LocalAssignment, captures int) error {
	// The assignment is a closed set of string-valued fields; scanning its
	// JSON form visits all of them.
	encoded, err := json.Marshal(assignment)
	if err != nil {
		return ruleError(rule, fmt.Sprintf("unencodable local clause: %v", err))
	}
	for _, match := range placeholderPattern.FindAllSubmatch(encoded, -1) {
		n, err := strconv.Atoi(string(match[1]))
		if err != nil || n >= captures {
			return ruleError(rule, fmt.Sprintf(
				"local clause references capture {%s} but remote produces only %d", match[1], captures))
		}
	}
	return nil
}

// DecodeMappingRules strictly decodes a raw rules document. Unknown fields
// and wrong shapes at any nesting level are rejected as ValidationError.
func DecodeMappingRules(raw json.RawMessage) ([]MappingRule, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	var rules []MappingRule
	if err := dec.Decode(&rules); err != nil {
		return nil, &ValidationError{Resource: "mapping", Detail: err.Error()}
	}
	return rules, nil
}

func ruleError(rule int, detail string) error {
	return &ValidationError{Resource: "mapping", Detail: fmt.Sprintf("rule %d: %s", rule, detail)}
}

func conditionError(rule, cond int, detail string) error {
	return &ValidationError{
		Resource: "mapping",
		Detail:   fmt.Sprintf("rule %d remote condition %d: %s", rule, cond, detail),
	}
}
