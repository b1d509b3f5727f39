package injection

import "regexp"

// Rule defines a prompt steering detection pattern.
type Rule struct {
	Name     string
	Regex    *regexp.Regexp
	Severity float64 // 0.0 to 1.0
}

// DefaultRules returns the built-in steering detection rules.
func DefaultRules() []Rule {
	return []Rule{
		{
			Name:     "ignore_previous",
			Regex:    regexp.MustCompile(`(?i)ignore\s+(all\s+)?(previous|prior)\s+(instructions|context|rules)`),
			Severity: 0.95,
		},
		{
			Name:     "system_prefix",
			Regex:    regexp.MustCompile(`(?i)^\s*system\s*:\s*`),
			Severity: 0.85,
		},
		{
			Name:     "code_block_system",
			Regex:    regexp.MustCompile("(?i)```system"),
			Severity: 0.85,
		},
		{
			Name:     "new_instructions",
			Regex:    regexp.MustCompile(`(?i)(new|updated|revised)\s+instructions?\s*:`),
			Severity: 0.8,
		},
		{
			Name:     "verdict_steering",
			Regex:    regexp.MustCompile(`(?i)(always|just)\s+(say|answer|respond)\s+(that\s+)?(everything|the\s+config)\s+is\s+(fine|correct)`),
			Severity: 0.75,
		},
		{
			Name:     "you_are_now",
			Regex:    regexp.MustCompile(`(?i)you\s+are\s+now\s+(a|an|the)\s+`),
			Severity: 0.7,
		},
	}
}
