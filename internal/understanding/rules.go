package understanding

import (
	"regexp"
	"strings"
)

// maxAnalyzedLength truncates input before regex evaluation to prevent
// ReDoS on extremely long messages.
const maxAnalyzedLength = 8192

// goalRule pairs a compiled regex with the priority its phrasing implies.
// Rules are evaluated in order; every match yields a goal.
type goalRule struct {
	regex    *regexp.Regexp
	priority Priority
}

// buildGoalRules returns ordered phrase patterns for goal extraction.
// The captured group is the goal description.
func buildGoalRules() []*goalRule {
	return []*goalRule{
		{regexp.MustCompile(`(?i)\bi\s+(?:urgently\s+)?need\s+(?:to\s+)?(.{3,120}?)(?:[.!?]|$)`), PriorityHigh},
		{regexp.MustCompile(`(?i)\bi\s+want\s+(?:to\s+)?(.{3,120}?)(?:[.!?]|$)`), PriorityMedium},
		{regexp.MustCompile(`(?i)\bhelp\s+me\s+(?:to\s+)?(.{3,120}?)(?:[.!?]|$)`), PriorityMedium},
		{regexp.MustCompile(`(?i)\b(?:please|can\s+you|could\s+you)\s+(.{3,120}?)(?:[.!?]|$)`), PriorityMedium},
		{regexp.MustCompile(`(?i)\b(schedule\s+.{3,120}?)(?:[.!?]|$)`), PriorityMedium},
		{regexp.MustCompile(`(?i)\bmy\s+goal\s+is\s+(?:to\s+)?(.{3,120}?)(?:[.!?]|$)`), PriorityHigh},
	}
}

// urgency keyword sets, strongest first. A match escalates goal priority
// and raises the contextual urgency estimate.
var (
	criticalUrgencyWords = []string{"urgent", "immediately", "asap", "right now", "critical", "emergency"}
	highUrgencyWords     = []string{"today", "soon", "quickly", "by tomorrow", "deadline"}
	lowUrgencyWords      = []string{"whenever", "eventually", "no rush", "sometime", "at some point"}
)

// constraintRule maps a phrase pattern to a constraint kind.
type constraintRule struct {
	regex *regexp.Regexp
	kind  ConstraintKind
}

func buildConstraintRules() []*constraintRule {
	return []*constraintRule{
		{regexp.MustCompile(`(?i)\b(?:by|before|until|within)\s+(?:\d|a\s|an\s|next\s|this\s|end\s+of\s|tomorrow|monday|tuesday|wednesday|thursday|friday|saturday|sunday)`), ConstraintTime},
		{regexp.MustCompile(`(?i)\b(?:every\s+(?:day|week|month|hour)|daily|weekly|monthly|at\s+\d{1,2}(?::\d{2})?\s*(?:am|pm)?)\b`), ConstraintTime},
		{regexp.MustCompile(`(?i)\b(?:deadline|due\s+date|time\s+limit)\b`), ConstraintTime},
		{regexp.MustCompile(`(?i)\b(?:budget|cheap(?:ly)?|free|low\s+cost|under\s+\$?\d|afford)`), ConstraintResource},
		{regexp.MustCompile(`(?i)\b(?:limited\s+(?:resources|capacity)|only\s+one|single\s+(?:machine|server|agent))\b`), ConstraintResource},
		{regexp.MustCompile(`(?i)\b(?:thorough(?:ly)?|high\s+quality|precise(?:ly)?|accurate(?:ly)?|comprehensive|rigorous|detailed)\b`), ConstraintQuality},
	}
}

// vagueQuantifierPattern matches quantifiers that leave scope undefined.
var vagueQuantifierPattern = regexp.MustCompile(`(?i)\b(?:some|a\s+few|several|many|most|various|a\s+bit|kind\s+of|sort\s+of|stuff|things)\b`)

// pronounPattern matches referential pronouns whose antecedent may be
// unclear. Three or more occurrences flag a semantic ambiguity.
var pronounPattern = regexp.MustCompile(`(?i)\b(?:it|they|them|this|that|these|those)\b`)

// modalPattern matches hedging modal verbs. Two or more occurrences flag a
// pragmatic ambiguity.
var modalPattern = regexp.MustCompile(`(?i)\b(?:might|maybe|could|should|perhaps|possibly|probably)\b`)

// measurablePattern detects quantified targets in goal text.
var measurablePattern = regexp.MustCompile(`(?i)(?:\d+\s*%|\d+\s+(?:times|days|weeks|items|results)|\bevery\s+(?:day|week|month)\b|\bdaily\b|\bweekly\b)`)

// domainKeywords maps domain names to keyword lists used when stored
// expertise gives no signal.
var domainKeywords = map[string][]string{
	"health":   {"acne", "skin", "doctor", "medical", "symptom", "diet", "exercise", "sleep", "medication"},
	"finance":  {"budget", "invoice", "invest", "stock", "expense", "tax", "payment", "salary"},
	"software": {"code", "deploy", "bug", "api", "server", "database", "build", "release", "repository"},
	"research": {"research", "study", "paper", "literature", "survey", "analysis", "sources"},
	"devops":   {"kubernetes", "docker", "pipeline", "ci", "terraform", "cluster", "monitoring"},
}

// technicalTermPattern estimates term density for complexity scoring.
var technicalTermPattern = regexp.MustCompile(`(?i)\b(?:api|database|pipeline|algorithm|protocol|kubernetes|regression|throughput|latency|schema|concurrency|encryption)\b`)

// objectiveKeywords map goal-text verbs to inferred business objectives.
var objectiveKeywords = map[string]string{
	"improve":  "improve an existing capability or condition",
	"grow":     "grow reach or output",
	"reduce":   "reduce cost, time, or risk",
	"learn":    "build knowledge or expertise",
	"research": "build knowledge or expertise",
	"automate": "automate a recurring workflow",
	"schedule": "automate a recurring workflow",
	"track":    "establish ongoing visibility",
	"monitor":  "establish ongoing visibility",
	"fix":      "restore correct behavior",
}

// truncateForAnalysis bounds the text fed to the rule tables.
func truncateForAnalysis(s string) string {
	if len(s) > maxAnalyzedLength {
		return s[:maxAnalyzedLength]
	}
	return s
}

// containsAny reports whether the lowercased text contains any keyword.
func containsAny(text string, words []string) bool {
	for _, w := range words {
		if strings.Contains(text, w) {
			return true
		}
	}
	return false
}

// countMatches returns the number of pattern matches in the text.
func countMatches(re *regexp.Regexp, text string) int {
	return len(re.FindAllStringIndex(text, -1))
}
