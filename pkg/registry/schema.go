package registry

// RuleSet is the policy configuration consumed by the response validator
// and the escalation engine.
type RuleSet struct {
	Version           string       `yaml:"version" json:"version"`
	LastUpdated       string       `yaml:"lastUpdated,omitempty" json:"lastUpdated,omitempty"`
	Rules             []PolicyRule `yaml:"rules" json:"rules"`
	RegulatedKeywords []string     `yaml:"regulatedKeywords,omitempty" json:"regulatedKeywords,omitempty"`
	ExplicitPhrases   []string     `yaml:"explicitPhrases,omitempty" json:"explicitPhrases,omitempty"`
}

// PolicyRule is a denylist pattern a draft must not match.
type PolicyRule struct {
	ID          string   `yaml:"id" json:"id"`
	Description string   `yaml:"description,omitempty" json:"description,omitempty"`
	Pattern     string   `yaml:"pattern" json:"pattern"`
	Severity    string   `yaml:"severity,omitempty" json:"severity,omitempty"`
	Categories  []string `yaml:"categories,omitempty" json:"categories,omitempty"`
	Tags        []string `yaml:"tags,omitempty" json:"tags,omitempty"`
}

const ruleSetSchema = `{
  "type": "object",
  "required": ["version", "rules"],
  "properties": {
    "version":     {"type": "string", "minLength": 1},
    "lastUpdated": {"type": "string"},
    "rules": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["id", "pattern"],
        "properties": {
          "id":          {"type": "string", "pattern": "^[A-Z][A-Z0-9_]*$"},
          "description": {"type": "string"},
          "pattern":     {"type": "string", "minLength": 1},
          "severity":    {"type": "string", "enum": ["low", "medium", "high", "critical"]},
          "categories":  {"type": "array", "items": {"type": "string"}},
          "tags":        {"type": "array", "items": {"type": "string"}}
        },
        "additionalProperties": false
      }
    },
    "regulatedKeywords": {"type": "array", "items": {"type": "string", "minLength": 1}},
    "explicitPhrases":   {"type": "array", "items": {"type": "string", "minLength": 1}}
  },
  "additionalProperties": false
}`
