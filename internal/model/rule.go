package model

import "github.com/coffersTech/ruleast/internal/pkg/ruleql"

// Rule is a stored rule. RuleString and Rule describe the same expression;
// the engine derives both before a rule is persisted.
type Rule struct {
	ID         int64        `json:"id"`
	RuleString string       `json:"rule_string"`
	RuleName   string       `json:"rule_name"`
	Rule       *ruleql.Tree `json:"rule"`
}

// Summary is the listing view of a rule.
type Summary struct {
	ID       int64  `json:"id"`
	RuleName string `json:"ruleName"`
}
