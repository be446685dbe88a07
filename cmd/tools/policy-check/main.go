package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"support-agent/pkg/registry"
)

var policyPath string

func main() {
	addCmd := pflag.NewFlagSet("add", pflag.ExitOnError)
	validateCmd := pflag.NewFlagSet("validate", pflag.ExitOnError)
	checkCmd := pflag.NewFlagSet("check", pflag.ExitOnError)

	for _, fs := range []*pflag.FlagSet{addCmd, validateCmd, checkCmd} {
		fs.StringVar(&policyPath, "path", "configs/policy_rules.yaml", "Path to policy rule file")
	}

	id := addCmd.String("id", "", "Rule ID (e.g. NO_REFUND_PROMISE)")
	pattern := addCmd.String("pattern", "", "Case-insensitive regular expression a draft must not match")
	description := addCmd.String("description", "", "Description")
	severity := addCmd.String("severity", "high", "Severity (low, medium, high, critical)")
	categories := addCmd.StringSlice("category", nil, "Restrict the rule to a ticket category (repeatable)")

	category := checkCmd.String("category", "", "Ticket category the draft belongs to")
	draftFile := checkCmd.String("draft", "-", "File holding the draft reply, - for stdin")

	if len(os.Args) < 2 {
		help()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "add":
		_ = addCmd.Parse(os.Args[2:])
		if *id == "" || *pattern == "" {
			fmt.Println("Error: id and pattern are required for add.")
			addCmd.Usage()
			os.Exit(1)
		}
		rule := registry.PolicyRule{
			ID:          *id,
			Pattern:     *pattern,
			Description: *description,
			Severity:    *severity,
			Categories:  *categories,
		}
		if err := addRule(rule); err != nil {
			fmt.Printf("Error adding rule: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Added rule: %s\n", *id)

	case "validate":
		_ = validateCmd.Parse(os.Args[2:])
		policy, err := registry.LoadRegistry(policyPath)
		if err != nil {
			fmt.Printf("Policy validation failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Policy validation passed. Version %s, %d rules, %d regulated keywords, %d explicit phrases.\n",
			policy.Version, len(policy.Rules), len(policy.RegulatedKeywords), len(policy.ExplicitPhrases))

	case "check":
		_ = checkCmd.Parse(os.Args[2:])
		violated, err := checkDraft(*draftFile, *category)
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
		if len(violated) > 0 {
			fmt.Printf("Draft violates: %s\n", strings.Join(violated, ", "))
			os.Exit(2)
		}
		fmt.Println("Draft passes every policy rule.")

	case "help":
		fallthrough
	default:
		help()
	}
}

func addRule(rule registry.PolicyRule) error {
	rs, err := readRuleSet(policyPath)
	if err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("failed to load policy: %w", err)
		}
		rs = &registry.RuleSet{Version: "1.0.0"}
	}

	for _, existing := range rs.Rules {
		if existing.ID == rule.ID {
			return fmt.Errorf("rule with ID %s already exists", rule.ID)
		}
	}
	rs.Rules = append(rs.Rules, rule)
	rs.LastUpdated = time.Now().Format(time.RFC3339)

	if _, err := registry.Compile(*rs); err != nil {
		return err
	}
	return saveRuleSet(rs, policyPath)
}

func checkDraft(path, category string) ([]string, error) {
	policy, err := registry.LoadRegistry(policyPath)
	if err != nil {
		return nil, err
	}

	var data []byte
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read draft: %w", err)
	}

	var violated []string
	for _, rule := range policy.RulesFor(category) {
		if rule.Regexp.Match(data) {
			violated = append(violated, rule.ID)
		}
	}
	return violated, nil
}

func readRuleSet(path string) (*registry.RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var rs registry.RuleSet
	if err := yaml.Unmarshal(data, &rs); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return &rs, nil
}

func saveRuleSet(rs *registry.RuleSet, path string) error {
	data, err := yaml.Marshal(rs)
	if err != nil {
		return fmt.Errorf("failed to marshal policy: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write policy file: %w", err)
	}
	return nil
}

func help() {
	fmt.Println(`
Usage: policy-check <command> [flags]

Commands:
  add       Add a denylist rule to the policy file
  validate  Validate and compile the policy file
  check     Run a draft reply through the rules for a category
  help      Show this help message

Examples:
  policy-check add --id NO_REFUND_PROMISE --pattern "we will refund" --category billing_inquiry
  policy-check validate --path configs/policy_rules.yaml
  echo "We guarantee a refund" | policy-check check --category billing_inquiry`)
}
