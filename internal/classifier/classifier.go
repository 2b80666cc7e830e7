// Package classifier scores chat messages against the moderation lexicon and
// decides whether they are allowed, delivered with a warning, or blocked.
//
// Classify is a pure function over the text and the static lexicon: it has no
// side effects and cannot fail. Recording the verdict (moderation log entry)
// is the caller's responsibility so the scoring logic stays independently
// testable.
package classifier

import (
	"strings"
	"unicode/utf8"

	"github.com/youthguard/chat-platform/internal/lexicon"
)

// Classification is the severity bucket assigned to a message.
type Classification string

const (
	Harmless   Classification = "harmless"
	Borderline Classification = "borderline"
	Violation  Classification = "violation"
	Critical   Classification = "critical"
)

// Action is what the delivery layer must do with the message.
type Action string

const (
	ActionAllow Action = "allow"
	ActionWarn  Action = "warn"
	ActionBlock Action = "block"
)

// Verdict is the classification result for a single message.
type Verdict struct {
	Classification Classification
	Score          int
	Reason         string
	Action         Action
}

// Blocked reports whether the verdict rejects the message outright.
func (v Verdict) Blocked() bool { return v.Action == ActionBlock }

// Classifier scores text against a lexicon. Safe for concurrent use; the
// lexicon is read-only after construction.
type Classifier struct {
	lists    lexicon.Lists
	patterns lexicon.Patterns
}

// New returns a classifier using the built-in lexicon.
func New() *Classifier {
	return NewWithLexicon(lexicon.Default(), lexicon.DefaultPatterns())
}

// NewWithLexicon returns a classifier over custom lists and patterns.
// Used by tests to pin down rule behavior without the full word lists.
func NewWithLexicon(lists lexicon.Lists, patterns lexicon.Patterns) *Classifier {
	return &Classifier{lists: lists, patterns: patterns}
}

// Classify scores a message and returns the verdict.
//
// The rule order is a tie-break policy: critical keywords dominate
// everything, grooming/sexual/violence checks short-circuit, and the
// remaining rules accumulate additively before the final score thresholds
// are applied. Term matching is a case-insensitive substring check without
// word boundaries, so terms also match inside larger words.
func (c *Classifier) Classify(text string) Verdict {
	lower := strings.ToLower(text)

	v := Verdict{Classification: Harmless, Action: ActionAllow}

	// 1. Critical keywords: immediate block, dominates all other rules.
	for _, term := range c.lists.Critical {
		if strings.Contains(lower, term) {
			return Verdict{
				Classification: Critical,
				Score:          100,
				Reason:         "Kritisches Schlüsselwort erkannt",
				Action:         ActionBlock,
			}
		}
	}

	// 2. Grooming patterns: two or more hits block.
	grooming := 0
	for _, term := range c.lists.Grooming {
		if strings.Contains(lower, term) {
			grooming++
			v.Score += 20
		}
	}
	if grooming >= 2 {
		v.Classification = Critical
		v.Reason = "Mögliches Grooming-Verhalten"
		v.Action = ActionBlock
		return v
	}

	// 3. Sexual content: first hit blocks.
	for _, term := range c.lists.Sexual {
		if strings.Contains(lower, term) {
			v.Score += 30
			v.Classification = Violation
			v.Reason = "Sexueller Inhalt"
			v.Action = ActionBlock
			return v
		}
	}

	// 4. Violence: first hit blocks.
	for _, term := range c.lists.Violence {
		if strings.Contains(lower, term) {
			v.Score += 25
			v.Classification = Critical
			v.Reason = "Gewaltbezug"
			v.Action = ActionBlock
			return v
		}
	}

	// 5. Drug references accumulate; no early return.
	for _, term := range c.lists.Drugs {
		if strings.Contains(lower, term) {
			v.Score += 20
			v.Classification = Violation
			v.Reason = "Drogenbezug"
			v.Action = ActionWarn
		}
	}

	// 6. Harassment accumulates; escalates harmless messages only.
	for _, term := range c.lists.Harassment {
		if strings.Contains(lower, term) {
			v.Score += 15
			if v.Classification == Harmless {
				v.Classification = Borderline
				v.Reason = "Beleidigung"
				v.Action = ActionWarn
			}
		}
	}

	// 7. Pattern checks. Each can raise the score and escalate the verdict;
	// none of them return early, so multiple matches compound.
	if c.patterns.Phone.MatchString(text) {
		v.Score += 40
		v.Classification = Critical
		v.Reason = "Telefonnummer erkannt"
		v.Action = ActionBlock
	}
	if c.patterns.Email.MatchString(text) {
		v.Score += 35
		v.Classification = Critical
		v.Reason = "E-Mail-Adresse erkannt"
		v.Action = ActionBlock
	}
	if c.patterns.URL.MatchString(text) {
		v.Score += 30
		v.Classification = Violation
		v.Reason = "Link erkannt"
		v.Action = ActionBlock
	}
	if c.patterns.Social.MatchString(text) {
		v.Score += 25
		v.Classification = Borderline
		v.Reason = "Social Media Handle erkannt"
		v.Action = ActionWarn
	}
	if c.patterns.Address.MatchString(text) {
		v.Score += 50
		v.Classification = Critical
		v.Reason = "Adresse erkannt"
		v.Action = ActionBlock
	}
	if lexicon.HasRepeatedRun(text) {
		v.Score += 10
		if v.Classification == Harmless {
			v.Classification = Borderline
			v.Reason = "Spam-Verdacht"
			v.Action = ActionWarn
		}
	}

	// 8. Heuristics: small additive nudges.
	length := utf8.RuneCountInString(text)
	if length > 500 {
		v.Score += 5
	}
	if length > 10 {
		upper := len(c.patterns.Upper.FindAllString(text, -1))
		if float64(upper) > float64(length)*0.5 {
			v.Score += 5
		}
	}
	if len(c.patterns.Emoji.FindAllString(text, -1)) > 5 {
		v.Score += 5
	}

	// 9. Final aggregation: the accumulated score can override the
	// classification set by the non-short-circuiting rules above. The
	// middle band never downgrades a block already decided by a pattern
	// rule (a lone phone number must stay blocked).
	switch {
	case v.Score >= 80:
		v.Classification = Critical
		v.Action = ActionBlock
	case v.Score >= 50:
		v.Classification = Violation
		v.Action = ActionBlock
	case v.Score >= 25 && v.Action != ActionBlock:
		v.Classification = Borderline
		v.Action = ActionWarn
	}

	return v
}
