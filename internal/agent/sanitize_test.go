package agent

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/nextlevelbuilder/lettabot/internal/config"
)

func defaultSanitizer() *Sanitizer {
	return NewSanitizer(config.SanitizeConfig{})
}

func TestSanitize_Scenarios(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "run cap then total cap",
			in:   "🔥🔥🔥🔥 great job 🎉🎉🎉🎉🎉🎉",
			want: "🔥🔥🔥 great job 🎉🎉",
		},
		{
			name: "plain text untouched",
			in:   "hello there, how are you?",
			want: "hello there, how are you?",
		},
		{
			name: "text between identical emoji resets the run",
			in:   "😀😀😀a😀",
			want: "😀😀😀a😀",
		},
		{
			name: "space between identical emoji resets the run",
			in:   "👍👍👍👍 👍",
			want: "👍👍👍 👍",
		},
		{
			name: "custom emoji markup counts as a token",
			in:   "<:pog:123456><:pog:123456><:pog:123456><:pog:123456> nice",
			want: "<:pog:123456><:pog:123456><:pog:123456> nice",
		},
		{
			name: "animated custom emoji",
			in:   "hi <a:wave:42>",
			want: "hi <a:wave:42>",
		},
		{
			name: "zwj family is one token",
			in:   "👨‍👩‍👧👨‍👩‍👧👨‍👩‍👧👨‍👩‍👧",
			want: "👨‍👩‍👧👨‍👩‍👧👨‍👩‍👧",
		},
		{
			name: "variation selector stays attached",
			in:   "❤️❤️❤️❤️❤️",
			want: "❤️❤️❤️",
		},
		{
			name: "deleted tokens leave collapsed whitespace",
			in:   "a 😀 😁 😂 🤣 😃 😄   😅 b",
			want: "a 😀 😁 😂 🤣 😃 b",
		},
		{
			name: "leading and trailing whitespace trimmed",
			in:   "   hi   ",
			want: "hi",
		},
		{
			name: "empty",
			in:   "",
			want: "",
		},
	}

	s := defaultSanitizer()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := s.Sanitize(tt.in)
			if got != tt.want {
				t.Errorf("Sanitize(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestSanitize_ScenarioKeepsExactlyFiveEmoji(t *testing.T) {
	got := defaultSanitizer().Sanitize("🔥🔥🔥🔥 great job 🎉🎉🎉🎉🎉🎉")
	if n := CountEmojis(got); n != 5 {
		t.Errorf("CountEmojis(%q) = %d, want 5", got, n)
	}
	if !strings.HasPrefix(got, "🔥🔥🔥") || !strings.Contains(got, "great job") {
		t.Errorf("unexpected output %q", got)
	}
}

func TestSanitize_Caps(t *testing.T) {
	inputs := []string{
		strings.Repeat("🔥", 20),
		"🔥🔥🎉🎉🎉🎉🔥🔥🔥🔥😀😀",
		"a🔥b🔥c🔥d🔥e🔥f🔥g🔥",
		"<:x1:1><:x1:1><:x1:1><:x1:1>🔥🔥🔥🔥",
		strings.Repeat("ok 👍👍👍👍👍 ", 10),
	}

	tests := []struct {
		maxEmojis, maxRun int
	}{
		{5, 3},
		{2, 1},
		{10, 2},
	}

	for _, tt := range tests {
		s := NewSanitizer(config.SanitizeConfig{MaxEmojis: tt.maxEmojis, MaxEmojiRun: tt.maxRun})
		for _, in := range inputs {
			out := s.Sanitize(in)
			if n := CountEmojis(out); n > tt.maxEmojis {
				t.Errorf("caps(%d,%d) Sanitize(%q) kept %d emoji", tt.maxEmojis, tt.maxRun, in, n)
			}
			if run := longestIdenticalRun(out); run > tt.maxRun {
				t.Errorf("caps(%d,%d) Sanitize(%q) = %q has run %d", tt.maxEmojis, tt.maxRun, in, out, run)
			}
		}
	}
}

func TestSanitize_Idempotent(t *testing.T) {
	inputs := []string{
		"🔥🔥🔥🔥 great job 🎉🎉🎉🎉🎉🎉",
		"a 😀 😁 😂 🤣 😃 😄   😅 b",
		"<a🔥:ab:12>🔥🔥🔥🔥🔥",
		strings.Repeat("word ", 450),
		strings.Repeat("x", 1999) + " 🔥",
		strings.Repeat("🔥 ", 1500),
		"\t\n  spaced\n\n\n\nout  \n",
	}

	s := defaultSanitizer()
	for _, in := range inputs {
		once := s.Sanitize(in)
		twice := s.Sanitize(once)
		if once != twice {
			t.Errorf("not idempotent for %q:\n once  = %q\n twice = %q", truncateForLog(in), truncateForLog(once), truncateForLog(twice))
		}
	}
}

func TestSanitize_LengthCap(t *testing.T) {
	s := defaultSanitizer()

	in := strings.Repeat("a", 2100)
	out := s.Sanitize(in)
	if n := utf8.RuneCountInString(out); n > 2000 {
		t.Errorf("len = %d, want <= 2000", n)
	}

	// A ZWJ sequence straddling the limit is dropped whole, not split.
	family := "👨‍👩‍👧"
	in = strings.Repeat("b", 1998) + family
	out = s.Sanitize(in)
	if strings.Contains(out, "\u200d") {
		t.Errorf("truncation split a ZWJ sequence: tail %q", out[len(out)-8:])
	}
	if utf8.RuneCountInString(out) != 1998 {
		t.Errorf("len = %d, want 1998", utf8.RuneCountInString(out))
	}
}

// longestIdenticalRun measures the longest strictly adjacent run of identical
// emoji tokens in s.
func longestIdenticalRun(s string) int {
	tokens := tokenize(s)
	best, run := 0, 0
	for i, tok := range tokens {
		if tok == "" {
			run = 0
			continue
		}
		if i > 0 && tokens[i-1] == tok {
			run++
		} else {
			run = 1
		}
		if run > best {
			best = run
		}
	}
	return best
}

// tokenize returns emoji tokens with "" standing in for any non-emoji text.
func tokenize(s string) []string {
	var out []string
	pos := 0
	plain := func(seg string) {
		for _, r := range seg {
			if isPictographic(r) {
				out = append(out, string(r))
			} else if r != '\uFE0F' && r != '\u200D' {
				out = append(out, "")
			}
		}
	}
	for _, loc := range customEmojiPattern.FindAllStringIndex(s, -1) {
		plain(s[pos:loc[0]])
		out = append(out, s[loc[0]:loc[1]])
		pos = loc[1]
	}
	plain(s[pos:])
	return out
}

func truncateForLog(s string) string {
	if len(s) > 80 {
		return s[:80] + "..."
	}
	return s
}
