package classifier

import (
	"strings"
	"testing"

	"github.com/youthguard/chat-platform/internal/lexicon"
)

func TestClassify_Empty(t *testing.T) {
	c := New()
	v := c.Classify("")
	if v.Action != ActionAllow {
		t.Errorf("Classify(\"\").Action = %q, want %q", v.Action, ActionAllow)
	}
	if v.Score != 0 {
		t.Errorf("Classify(\"\").Score = %d, want 0", v.Score)
	}
	if v.Classification != Harmless {
		t.Errorf("Classify(\"\").Classification = %q, want %q", v.Classification, Harmless)
	}
}

func TestClassify_CriticalKeywords(t *testing.T) {
	c := New()

	tests := []struct {
		name  string
		input string
	}{
		{"plain term", "schick mir nudes"},
		{"uppercase", "NACKTBILDER"},
		{"mixed case", "WhatsApp nummer?"},
		{"inside larger word", "whatsappgruppe"},
		{"alongside clean text", "hey, wie geht's? gib mir deine telefonnummer"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := c.Classify(tt.input)
			if v.Action != ActionBlock {
				t.Errorf("Classify(%q).Action = %q, want block", tt.input, v.Action)
			}
			if v.Classification != Critical {
				t.Errorf("Classify(%q).Classification = %q, want critical", tt.input, v.Classification)
			}
			if v.Score != 100 {
				t.Errorf("Classify(%q).Score = %d, want 100", tt.input, v.Score)
			}
		})
	}
}

func TestClassify_Grooming(t *testing.T) {
	c := New()

	// A single grooming term accumulates score but does not block by itself.
	v := c.Classify("das bleibt geheim")
	if v.Action == ActionBlock {
		t.Errorf("single grooming term blocked, want not blocked (verdict %+v)", v)
	}
	if v.Score != 20 {
		t.Errorf("single grooming term Score = %d, want 20", v.Score)
	}

	// Two distinct grooming terms block.
	v = c.Classify("das bleibt geheim, das darfst du niemand erzählen")
	if v.Action != ActionBlock {
		t.Errorf("two grooming terms Action = %q, want block", v.Action)
	}
	if v.Classification != Critical {
		t.Errorf("two grooming terms Classification = %q, want critical", v.Classification)
	}
	if v.Score != 40 {
		t.Errorf("two grooming terms Score = %d, want 40", v.Score)
	}
}

func TestClassify_CategoryShortCircuit(t *testing.T) {
	c := New()

	tests := []struct {
		name           string
		input          string
		classification Classification
		score          int
	}{
		{"sexual blocks as violation", "porno", Violation, 30},
		{"violence blocks as critical", "ich werde dich umbringen", Critical, 25},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := c.Classify(tt.input)
			if v.Action != ActionBlock {
				t.Errorf("Classify(%q).Action = %q, want block", tt.input, v.Action)
			}
			if v.Classification != tt.classification {
				t.Errorf("Classify(%q).Classification = %q, want %q", tt.input, v.Classification, tt.classification)
			}
			if v.Score != tt.score {
				t.Errorf("Classify(%q).Score = %d, want %d", tt.input, v.Score, tt.score)
			}
		})
	}
}

func TestClassify_DrugsWarn(t *testing.T) {
	c := New()

	v := c.Classify("hast du weed dabei")
	if v.Action != ActionWarn {
		t.Errorf("drug term Action = %q, want warn", v.Action)
	}
	if v.Classification != Violation {
		t.Errorf("drug term Classification = %q, want violation", v.Classification)
	}
	if v.Score != 20 {
		t.Errorf("drug term Score = %d, want 20", v.Score)
	}

	// Two drug terms push the score to 40 -> borderline via final aggregation.
	v = c.Classify("weed oder gras?")
	if v.Score != 40 {
		t.Errorf("two drug terms Score = %d, want 40", v.Score)
	}
	if v.Action != ActionWarn {
		t.Errorf("two drug terms Action = %q, want warn", v.Action)
	}
}

func TestClassify_HarassmentEscalatesHarmlessOnly(t *testing.T) {
	c := New()

	v := c.Classify("du bist so dumm")
	if v.Action != ActionWarn {
		t.Errorf("harassment Action = %q, want warn", v.Action)
	}
	if v.Classification != Borderline {
		t.Errorf("harassment Classification = %q, want borderline", v.Classification)
	}

	// Drugs and harassment compound additively; the final aggregation
	// places the combined score in the warn band.
	v = c.Classify("du dummer dealer")
	if v.Score != 35 {
		t.Errorf("drugs+harassment Score = %d, want 35", v.Score)
	}
	if v.Action != ActionWarn {
		t.Errorf("drugs+harassment Action = %q, want warn", v.Action)
	}
}

func TestClassify_Patterns(t *testing.T) {
	c := New()

	tests := []struct {
		name           string
		input          string
		action         Action
		classification Classification
		score          int
	}{
		{"phone number", "ruf mich an: 030 1234567", ActionBlock, Critical, 40},
		// The handle pattern also matches the @domain part of an email, so
		// the two rules compound into the violation band.
		{"email address", "schreib mir: max@example.com", ActionBlock, Violation, 60},
		{"url", "schau mal https://example.com/cool", ActionBlock, Violation, 30},
		{"social handle", "folg mir @maxi_2010", ActionWarn, Borderline, 25},
		{"postal address", "ich wohne in 10115 Berlin", ActionBlock, Violation, 50},
		{"repeated characters", "haaaaallo", ActionWarn, Borderline, 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := c.Classify(tt.input)
			if v.Action != tt.action {
				t.Errorf("Classify(%q).Action = %q, want %q", tt.input, v.Action, tt.action)
			}
			if v.Classification != tt.classification {
				t.Errorf("Classify(%q).Classification = %q, want %q", tt.input, v.Classification, tt.classification)
			}
			if v.Score != tt.score {
				t.Errorf("Classify(%q).Score = %d, want %d", tt.input, v.Score, tt.score)
			}
		})
	}
}

func TestClassify_PatternsCompound(t *testing.T) {
	c := New()

	// Phone (+40), email (+35) and the handle pattern matching the email's
	// @domain (+25) compound to 100 -> critical/block.
	v := c.Classify("030 1234567 oder max@example.com")
	if v.Score != 100 {
		t.Errorf("Score = %d, want 100", v.Score)
	}
	if v.Action != ActionBlock {
		t.Errorf("Action = %q, want block", v.Action)
	}
	if v.Classification != Critical {
		t.Errorf("Classification = %q, want critical", v.Classification)
	}
}

func TestClassify_Heuristics(t *testing.T) {
	c := New()

	t.Run("long message", func(t *testing.T) {
		v := c.Classify(strings.Repeat("hallo wie geht es dir denn so ", 20))
		if v.Score != 5 {
			t.Errorf("Score = %d, want 5", v.Score)
		}
		if v.Action != ActionAllow {
			t.Errorf("Action = %q, want allow", v.Action)
		}
	})

	t.Run("shouting", func(t *testing.T) {
		v := c.Classify("HALLO WIE GEHTS")
		if v.Score != 5 {
			t.Errorf("Score = %d, want 5", v.Score)
		}
	})

	t.Run("short shouting not counted", func(t *testing.T) {
		v := c.Classify("HALLO")
		if v.Score != 0 {
			t.Errorf("Score = %d, want 0", v.Score)
		}
	})

	t.Run("emoji flood", func(t *testing.T) {
		// Six distinct emoji, so the repeated-character rule stays quiet.
		v := c.Classify("hi \U0001F600\U0001F601\U0001F602\U0001F603\U0001F604\U0001F605")
		if v.Score != 5 {
			t.Errorf("Score = %d, want 5", v.Score)
		}
	})
}

func TestClassify_FinalAggregation(t *testing.T) {
	// Custom lexicon so scores can be stacked without tripping the
	// short-circuiting categories.
	lists := lexicon.Lists{
		Drugs:      []string{"alpha", "beta"},
		Harassment: []string{"gamma"},
	}
	c := NewWithLexicon(lists, lexicon.DefaultPatterns())

	// 20+20+15 = 55 -> violation/block even though drugs alone only warn.
	v := c.Classify("alpha beta gamma")
	if v.Score != 55 {
		t.Errorf("Score = %d, want 55", v.Score)
	}
	if v.Action != ActionBlock {
		t.Errorf("Action = %q, want block", v.Action)
	}
	if v.Classification != Violation {
		t.Errorf("Classification = %q, want violation", v.Classification)
	}
}

func TestClassify_CleanMessages(t *testing.T) {
	c := New()

	messages := []string{
		"hallo, wie geht es dir?",
		"was sind deine hobbys?",
		"magst du musik?",
		"ich spiele gern fußball",
		"welche klasse bist du?",
	}

	for _, msg := range messages {
		v := c.Classify(msg)
		if v.Action != ActionAllow {
			t.Errorf("Classify(%q) = %+v, want allow", msg, v)
		}
	}
}

// A message carrying a phone number must be blocked outright, not just
// flagged.
func TestClassify_PhoneScenario(t *testing.T) {
	c := New()

	v := c.Classify("call me at 030 1234567")
	if v.Action != ActionBlock {
		t.Fatalf("Action = %q, want block", v.Action)
	}
	if v.Score < 40 {
		t.Errorf("Score = %d, want >= 40", v.Score)
	}
}

func BenchmarkClassify(b *testing.B) {
	c := New()
	msg := "hallo! wie geht es dir heute? ich höre gern musik und schaue filme."

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c.Classify(msg)
	}
}
