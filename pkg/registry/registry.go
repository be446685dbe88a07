// Package registry loads and compiles the policy rule set.
package registry

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	apperrors "support-agent/internal/common/errors"
	"support-agent/internal/common/validation"
)

var schema = validation.MustCompile(ruleSetSchema)

// CompiledRule is a PolicyRule with its pattern compiled case-insensitively.
type CompiledRule struct {
	PolicyRule
	Regexp *regexp.Regexp
}

// AppliesTo reports whether the rule is scoped to category. Unscoped rules
// apply everywhere.
func (r CompiledRule) AppliesTo(category string) bool {
	if len(r.Categories) == 0 {
		return true
	}
	for _, c := range r.Categories {
		if c == category {
			return true
		}
	}
	return false
}

// Policy is a validated, compiled RuleSet. It is immutable after Load.
type Policy struct {
	Version           string
	Rules             []CompiledRule
	RegulatedKeywords []string
	ExplicitPhrases   []string
}

// RulesFor returns the rules that apply to category, in file order.
func (p *Policy) RulesFor(category string) []CompiledRule {
	if p == nil {
		return nil
	}
	out := make([]CompiledRule, 0, len(p.Rules))
	for _, r := range p.Rules {
		if r.AppliesTo(category) {
			out = append(out, r)
		}
	}
	return out
}

// LoadRegistry reads a YAML rule set from path. Every failure is a
// POLICY_INVALID error and is fatal at startup.
func LoadRegistry(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.NewPolicyInvalidError(fmt.Sprintf("read %s: %v", path, err))
	}
	return Parse(data)
}

// Parse validates and compiles a YAML rule set.
func Parse(data []byte) (*Policy, error) {
	var doc map[string]interface{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, apperrors.NewPolicyInvalidError(fmt.Sprintf("parse yaml: %v", err))
	}
	result, err := schema.Validate(doc)
	if err != nil {
		return nil, apperrors.NewPolicyInvalidError(err.Error())
	}
	if !result.Valid {
		return nil, apperrors.NewPolicyInvalidError(strings.Join(result.GetErrorMessages(), "; "))
	}

	var rs RuleSet
	if err := yaml.Unmarshal(data, &rs); err != nil {
		return nil, apperrors.NewPolicyInvalidError(fmt.Sprintf("decode rule set: %v", err))
	}
	return Compile(rs)
}

// Compile turns a RuleSet into a Policy, rejecting duplicate ids and bad
// patterns.
func Compile(rs RuleSet) (*Policy, error) {
	p := &Policy{
		Version:           rs.Version,
		RegulatedKeywords: lowerAll(rs.RegulatedKeywords),
		ExplicitPhrases:   lowerAll(rs.ExplicitPhrases),
	}
	seen := make(map[string]bool, len(rs.Rules))
	for _, rule := range rs.Rules {
		if seen[rule.ID] {
			return nil, apperrors.NewPolicyInvalidError(fmt.Sprintf("duplicate rule id %s", rule.ID))
		}
		seen[rule.ID] = true

		re, err := regexp.Compile("(?i)" + rule.Pattern)
		if err != nil {
			return nil, apperrors.NewPolicyInvalidError(fmt.Sprintf("rule %s: %v", rule.ID, err))
		}
		p.Rules = append(p.Rules, CompiledRule{PolicyRule: rule, Regexp: re})
	}
	return p, nil
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(strings.ToLower(s)); s != "" {
			out = append(out, s)
		}
	}
	return out
}
