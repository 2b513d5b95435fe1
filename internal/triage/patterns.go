package triage

import (
	"regexp"
	"strings"
)

// Rule defines a recognizable intent pattern with its associated category.
type Rule struct {
	// Name is a unique identifier for this rule.
	Name string

	// Regex is the compiled regular expression matched against the message.
	Regex *regexp.Regexp

	// Category is the safety bucket assigned when this rule matches.
	Category Category

	// Priority determines matching order (higher = checked first). Severe
	// categories carry the highest priorities so that "when in doubt, pick
	// the more serious category" holds by construction.
	Priority int

	// Description provides human-readable context about what this rule detects.
	Description string
}

// DefaultRules contains the built-in triage patterns, ordered by priority
// (highest first) for deterministic matching.
var DefaultRules = []*Rule{
	// Mental-health crisis patterns (highest priority)
	{
		Name:        "crisis_suicidal_intent",
		Regex:       regexp.MustCompile(`(?i)(kill(ing)?\s+myself|end(ing)?\s+my\s+life|suicid(e|al)|don'?t\s+want\s+to\s+(live|be\s+alive)|better\s+off\s+dead)`),
		Category:    CategoryMentalHealthCrisis,
		Priority:    100,
		Description: "Explicit suicidal ideation or intent",
	},
	{
		Name:        "crisis_self_harm",
		Regex:       regexp.MustCompile(`(?i)(hurt(ing)?\s+myself|self[\s-]?harm|cut(ting)?\s+myself)`),
		Category:    CategoryMentalHealthCrisis,
		Priority:    99,
		Description: "Self-harm language",
	},

	// Medical emergency patterns
	{
		Name:        "emergency_cardiac_respiratory",
		Regex:       regexp.MustCompile(`(?i)(chest\s+pain|can'?t\s+breathe|difficulty\s+breathing|heart\s+attack|stroke)`),
		Category:    CategoryMedicalEmergency,
		Priority:    95,
		Description: "Cardiac or respiratory emergency symptoms",
	},
	{
		Name:        "emergency_acute",
		Regex:       regexp.MustCompile(`(?i)(passed?\s+out|unconscious|seizure|severe\s+(bleeding|allergic)|overdos(e|ed|ing)|anaphyla)`),
		Category:    CategoryMedicalEmergency,
		Priority:    94,
		Description: "Acute emergency symptoms",
	},

	// Extreme-risk protocol patterns
	{
		Name:        "extreme_dry_fast",
		Regex:       regexp.MustCompile(`(?i)dry\s+fast`),
		Category:    CategoryExtremeRiskProtocol,
		Priority:    80,
		Description: "Dry fasting (no food or water)",
	},
	{
		Name:        "extreme_substances",
		Regex:       regexp.MustCompile(`(?i)(dnp|2,4[\s-]?dinitrophenol|insulin\s+(for|to)\s+(muscle|gain|bodybuild)|sarms?\b|peptide\s+stack|research\s+chemical)`),
		Category:    CategoryExtremeRiskProtocol,
		Priority:    79,
		Description: "Dangerous performance substances",
	},
	{
		Name:        "extreme_fast_duration",
		Regex:       regexp.MustCompile(`(?i)(\b(7|8|9|1[0-9]|[2-9][0-9])\s*[\s-]?day(s)?\s+(water\s+)?fast|fast(ing)?\s+(for\s+)?(a\s+week|[7-9]\+?\s*days|two\s+weeks))`),
		Category:    CategoryExtremeRiskProtocol,
		Priority:    78,
		Description: "Extended fasting of a week or more",
	},
	{
		Name:        "extreme_self_experiment",
		Regex:       regexp.MustCompile(`(?i)(self[\s-]?inject|megados(e|ing)|stop(ping)?\s+(my\s+)?(insulin|medication|meds)\b)`),
		Category:    CategoryExtremeRiskProtocol,
		Priority:    77,
		Description: "Self-injection, megadosing, or stopping prescribed medication",
	},

	// Moderate-risk protocol patterns
	{
		Name:        "moderate_multi_day_fast",
		Regex:       regexp.MustCompile(`(?i)(\b[2-6]\s*[\s-]?day(s)?\s+(water\s+)?fast|(48|72)\s*[\s-]?hour\s+fast|prolonged\s+fast)`),
		Category:    CategoryModerateRiskProtocol,
		Priority:    60,
		Description: "Multi-day fasting protocols (2-6 days)",
	},
	{
		Name:        "moderate_cold_heat",
		Regex:       regexp.MustCompile(`(?i)(ice\s+bath|cold\s+plunge|sauna\s+protocol|cold\s+exposure)`),
		Category:    CategoryModerateRiskProtocol,
		Priority:    59,
		Description: "Cold or heat exposure protocols",
	},
	{
		Name:        "moderate_supplements",
		Regex:       regexp.MustCompile(`(?i)(supplement\s+stack|nootropic|berberine|high[\s-]?dose\s+(vitamin|melatonin|caffeine)|keto(genic)?\s+diet|carnivore\s+diet|omad\b)`),
		Category:    CategoryModerateRiskProtocol,
		Priority:    58,
		Description: "Aggressive supplementation or restrictive diet protocols",
	},

	// Non-crisis mental health patterns
	{
		Name:        "mental_health_general",
		Regex:       regexp.MustCompile(`(?i)(anxi(ety|ous)|depress(ed|ion)|panic\s+attack|burn(ed|t)?[\s-]?out|overwhelmed|can'?t\s+sleep|insomnia|lonely|grief|therapy|stress(ed)?\b)`),
		Category:    CategoryMentalHealthNonCrisis,
		Priority:    40,
		Description: "Mental-health vocabulary without crisis signals",
	},

	// Non-urgent medical patterns
	{
		Name:        "medical_symptoms",
		Regex:       regexp.MustCompile(`(?i)(blood\s+(pressure|sugar|test)|cholesterol|thyroid|diagnos(is|ed)|symptom|medication|prescri(bed|ption)|doctor\s+said|headache|fatigue|rash|digesti)`),
		Category:    CategoryMedicalNonUrgent,
		Priority:    35,
		Description: "Medical vocabulary without emergency signals",
	},
}

// Matcher evaluates the ordered rule table against message text.
type Matcher struct {
	rules []*Rule
}

// NewMatcher creates a Matcher with the default rule table.
func NewMatcher() *Matcher {
	return NewMatcherWithRules(DefaultRules)
}

// NewMatcherWithRules creates a Matcher with custom rules. Rules are sorted by
// priority (highest first) for deterministic matching.
func NewMatcherWithRules(rules []*Rule) *Matcher {
	sorted := make([]*Rule, len(rules))
	copy(sorted, rules)
	sortRulesByPriority(sorted)
	return &Matcher{rules: sorted}
}

// sortRulesByPriority sorts rules in descending order by priority.
func sortRulesByPriority(rules []*Rule) {
	// Insertion sort; the rule list is small.
	for i := 1; i < len(rules); i++ {
		key := rules[i]
		j := i - 1
		for j >= 0 && rules[j].Priority < key.Priority {
			rules[j+1] = rules[j]
			j--
		}
		rules[j+1] = key
	}
}

// Match returns the highest-priority rule matching the message, or nil when
// no rule fires. Matching is case-insensitive and free of side effects, so
// repeated calls with the same text always return the same rule.
func (m *Matcher) Match(text string) *Rule {
	normalized := strings.ToLower(text)
	for _, rule := range m.rules {
		if rule.Regex.MatchString(normalized) {
			return rule
		}
	}
	return nil
}

// Rules returns the ordered rule table.
func (m *Matcher) Rules() []*Rule {
	return m.rules
}
