// Package lexicon holds the categorized term lists and regex patterns the
// content classifier scores against. The lists are German because the
// platform's audience is; terms are matched as case-insensitive substrings,
// so entries must be lowercase.
package lexicon

import "regexp"

// Lists groups moderation terms by category. Category order and severity
// semantics live in the classifier; this package only supplies the data.
type Lists struct {
	// Critical terms block immediately on any occurrence.
	Critical []string
	// Grooming terms block when two or more occur in one message.
	Grooming []string
	// Sexual terms block on first occurrence.
	Sexual []string
	// Violence terms block on first occurrence.
	Violence []string
	// Drug terms accumulate and warn.
	Drugs []string
	// Harassment terms accumulate and escalate harmless messages only.
	Harassment []string
}

// Patterns holds the compiled regex patterns applied after the term checks.
// They are compiled once at package init and are safe for concurrent use.
type Patterns struct {
	Phone   *regexp.Regexp
	Email   *regexp.Regexp
	URL     *regexp.Regexp
	Address *regexp.Regexp
	Social  *regexp.Regexp
	Upper   *regexp.Regexp
	Emoji   *regexp.Regexp
}

var defaultLists = Lists{
	Critical: []string{
		"nudes", "nacktbilder", "sexting", "treffen", "adresse",
		"telefonnummer", "whatsapp", "snap", "instagram private",
	},
	Grooming: []string{
		"geheim", "nicht sagen", "alleine treffen", "niemand erzählen",
		"besonders", "erwachsen", "reif für dein alter",
	},
	Sexual: []string{
		"sex", "porno", "geil", "nackt", "brüste", "penis",
		"vagina", "anal", "oral", "masturbation",
	},
	Violence: []string{
		"töten", "umbringen", "selbstmord", "ritzen", "blut",
		"messer", "waffe", "schießen",
	},
	Drugs: []string{
		"kokain", "heroin", "crystal", "mdma", "ecstasy",
		"gras", "weed", "kiffen", "dealer",
	},
	Harassment: []string{
		"hure", "schlampe", "schwuchtel", "missgeburt",
		"hässlich", "fett", "dumm", "behindert",
	},
}

var defaultPatterns = Patterns{
	// Phone numbers in common formats: +49 30 1234567, (030) 123-4567, ...
	Phone: regexp.MustCompile(`(\+?\d{1,4}[\s-]?)?\(?\d{3,4}\)?[\s-]?\d{3,4}[\s-]?\d{3,4}`),

	// Email addresses.
	Email: regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`),

	// http/https/www URLs.
	URL: regexp.MustCompile(`(https?://|www\.)\S+`),

	// Rough German postal address heuristic: 5-digit code followed by a
	// capitalized place name.
	Address: regexp.MustCompile(`\b\d{5}\s+[A-ZÄÖÜ][a-zäöüß]+(\s+[A-ZÄÖÜ][a-zäöüß]+)*\b`),

	// Social media handles (@name with at least 3 characters).
	Social: regexp.MustCompile(`@[a-zA-Z0-9._]{3,}`),

	// Uppercase letters including umlauts, for the shouting heuristic.
	Upper: regexp.MustCompile(`[A-ZÄÖÜ]`),

	// Emoticon block code points, for the emoji-count heuristic.
	Emoji: regexp.MustCompile(`[\x{1F600}-\x{1F64F}]`),
}

// Default returns the built-in term lists.
func Default() Lists { return defaultLists }

// DefaultPatterns returns the built-in compiled patterns.
func DefaultPatterns() Patterns { return defaultPatterns }

// HasRepeatedRun reports whether text contains five or more consecutive
// identical characters (the spam heuristic). Go's regexp package (RE2) does
// not support backreferences, so this is a linear scan.
func HasRepeatedRun(text string) bool {
	const threshold = 5

	count := 1
	prev := rune(-1)
	for _, r := range text {
		if r == prev {
			count++
			if count >= threshold {
				return true
			}
		} else {
			count = 1
			prev = r
		}
	}
	return false
}
