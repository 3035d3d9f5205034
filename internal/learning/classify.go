package learning

import "regexp"

// maxClassifiedLength truncates failure text before regex evaluation to
// prevent ReDoS on very long accumulated error strings.
const maxClassifiedLength = 8192

// failureRule pairs a compiled regex with the failure type its phrasing
// implies. Rules are evaluated in order; the first match wins.
type failureRule struct {
	regex *regexp.Regexp
	kind  FailureType
}

func buildFailureRules() []*failureRule {
	return []*failureRule{
		{regexp.MustCompile(`(?i)\b(?:timeout|timed?\s+out|deadline\s+exceeded|took\s+too\s+long)\b`), FailureTimeout},
		{regexp.MustCompile(`(?i)\b(?:out\s+of\s+memory|oom|resource\s+(?:exhaust|saturat|constraint)|cpu\s+limit|memory\s+limit|quota)\b`), FailureResource},
		{regexp.MustCompile(`(?i)\b(?:unauthorized|forbidden|permission\s+denied|access\s+denied|auth(?:entication|orization)?\s+fail)`), FailureAuthorization},
		{regexp.MustCompile(`(?i)\b(?:connection\s+(?:refused|reset|closed)|network|unreachable|dns|no\s+route)\b`), FailureNetwork},
		{regexp.MustCompile(`(?i)\b(?:invalid|validation\s+fail|malformed|schema|bad\s+request|unprocessable)\b`), FailureValidation},
		{regexp.MustCompile(`(?i)\b(?:dependency|circular|cycle|deadlock|prerequisite|blocked\s+by)\b`), FailureDependency},
	}
}

// classifyFailure maps free failure text to a failure type. Unmatched text
// is general.
func classifyFailure(rules []*failureRule, text string) FailureType {
	if len(text) > maxClassifiedLength {
		text = text[:maxClassifiedLength]
	}
	for _, rule := range rules {
		if rule.regex.MatchString(text) {
			return rule.kind
		}
	}
	return FailureGeneral
}

// mitigationTemplate holds the fixed knowledge seeded for a failure type the
// first time it is observed.
type mitigationTemplate struct {
	warnings   []string
	prevention []string
	recovery   []string
}

var mitigationTemplates = map[FailureType]mitigationTemplate{
	FailureTimeout: {
		warnings:   []string{"task durations trending above estimates", "throughput dropping across cycles"},
		prevention: []string{"raise per-task timeouts for long-running capabilities", "split long nodes before dispatch"},
		recovery:   []string{"retry the task with a longer timeout", "reassign to a faster agent"},
	},
	FailureResource: {
		warnings:   []string{"cpu or memory climbing toward the ceiling", "resource_constraint adaptation triggers"},
		prevention: []string{"lower the dispatch concurrency limit", "serialize the plan"},
		recovery:   []string{"pause low-priority tasks until usage drops", "resume with reduced parallelism"},
	},
	FailureAuthorization: {
		warnings:   []string{"agents reporting permission errors on first delegation"},
		prevention: []string{"verify agent credentials before dispatch"},
		recovery:   []string{"re-resolve an agent with the required permissions"},
	},
	FailureNetwork: {
		warnings:   []string{"intermittent delegation errors", "agent health flapping"},
		prevention: []string{"prefer agents with recent successful deliveries"},
		recovery:   []string{"retry with backoff", "mark the unreachable agent offline"},
	},
	FailureValidation: {
		warnings:   []string{"plan validation issues recurring across refinements"},
		prevention: []string{"tighten plan validation strictness", "clarify ambiguities before planning"},
		recovery:   []string{"rebuild the plan from a refreshed understanding"},
	},
	FailureDependency: {
		warnings:   []string{"growing sequential chains in refined plans", "dependency issues in validation"},
		prevention: []string{"validate the dependency graph before dispatch"},
		recovery:   []string{"break the cycle and replan the affected nodes"},
	},
	FailureGeneral: {
		warnings:   []string{"success rate degrading without a specific signature"},
		prevention: []string{"trigger a feedback refinement cycle earlier"},
		recovery:   []string{"replan with a narrower goal set"},
	},
}
