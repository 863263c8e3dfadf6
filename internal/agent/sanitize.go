// Package agent holds the inbound relay core: classification, delivery and outbound sanitization.
//
// Every reply produced by the agent passes through Sanitizer before it is
// sent to Discord:
//
//  1. limitEmojis()        cap total emoji tokens and identical adjacent runs
//  2. collapse whitespace  deletions leave gaps; runs of 3+ become one space
//  3. truncate             hard length cap on a grapheme boundary
package agent

import (
	"log/slog"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/rivo/uniseg"

	"github.com/nextlevelbuilder/lettabot/internal/config"
)

const (
	defaultMaxEmojis   = 5
	defaultMaxEmojiRun = 3
	defaultMaxLength   = 2000
)

// customEmojiPattern matches Discord custom emoji markup: <:name:id> and <a:name:id>.
var customEmojiPattern = regexp.MustCompile(`<a?:\w{2,}:\d+>`)

// wideWhitespacePattern matches whitespace runs left behind by deleted tokens.
var wideWhitespacePattern = regexp.MustCompile(`\s{3,}`)

// Sanitizer bounds emoji density and length of outbound text. It is a pure
// function of its input and thresholds, safe for concurrent use.
type Sanitizer struct {
	MaxEmojis int // total emoji tokens kept
	MaxRun    int // identical adjacent emoji kept
	MaxLength int // characters (runes) kept
}

// NewSanitizer builds a Sanitizer from config, applying defaults for unset caps.
func NewSanitizer(cfg config.SanitizeConfig) *Sanitizer {
	s := &Sanitizer{
		MaxEmojis: cfg.MaxEmojis,
		MaxRun:    cfg.MaxEmojiRun,
		MaxLength: cfg.MaxLength,
	}
	if s.MaxEmojis <= 0 {
		s.MaxEmojis = defaultMaxEmojis
	}
	if s.MaxRun <= 0 {
		s.MaxRun = defaultMaxEmojiRun
	}
	if s.MaxLength <= 0 {
		s.MaxLength = defaultMaxLength
	}
	return s
}

// Sanitize applies the emoji caps, whitespace collapse and length cap.
// Sanitize(Sanitize(x)) == Sanitize(x).
func (s *Sanitizer) Sanitize(text string) string {
	if text == "" {
		return ""
	}

	// Deleting a token can splice a new custom-emoji token together
	// ("<a" + 🔥 + ":ab:12>"), so filter until nothing changes.
	content := text
	for i := 0; i < 4; i++ {
		next := s.limitEmojis(content)
		if next == content {
			break
		}
		content = next
	}

	content = wideWhitespacePattern.ReplaceAllString(content, " ")
	content = strings.TrimSpace(content)
	content = truncateGraphemes(content, s.MaxLength)
	content = strings.TrimRightFunc(content, unicode.IsSpace)

	if content != text {
		slog.Debug("sanitized outbound text",
			"original_len", len(text),
			"cleaned_len", len(content),
		)
	}
	return content
}

// limitEmojis walks the text once, left to right, and deletes emoji tokens
// that exceed the run cap or arrive after the total cap is reached.
// A run only continues across strictly adjacent identical tokens.
func (s *Sanitizer) limitEmojis(text string) string {
	var b strings.Builder
	b.Grow(len(text))

	var (
		prev     string
		adjacent bool // no text between the previous token and the current position
		run      int
		total    int
	)

	emit := func(token string) {
		if adjacent && token == prev {
			run++
		} else {
			run = 1
		}
		prev = token
		adjacent = true

		switch {
		case run > s.MaxRun: // dropped: run cap
		case total >= s.MaxEmojis: // dropped: total cap
		default:
			total++
			b.WriteString(token)
		}
	}

	scanPlain := func(segment string) {
		gr := uniseg.NewGraphemes(segment)
		for gr.Next() {
			cluster := gr.Str()
			r, _ := utf8.DecodeRuneInString(cluster)
			if isPictographic(r) {
				emit(cluster)
				continue
			}
			adjacent = false
			b.WriteString(cluster)
		}
	}

	pos := 0
	for _, loc := range customEmojiPattern.FindAllStringIndex(text, -1) {
		scanPlain(text[pos:loc[0]])
		emit(text[loc[0]:loc[1]])
		pos = loc[1]
	}
	scanPlain(text[pos:])

	return b.String()
}

// CountEmojis returns the number of emoji tokens in text.
func CountEmojis(text string) int {
	n := 0
	pos := 0
	count := func(segment string) {
		gr := uniseg.NewGraphemes(segment)
		for gr.Next() {
			r, _ := utf8.DecodeRuneInString(gr.Str())
			if isPictographic(r) {
				n++
			}
		}
	}
	for _, loc := range customEmojiPattern.FindAllStringIndex(text, -1) {
		count(text[pos:loc[0]])
		n++
		pos = loc[1]
	}
	count(text[pos:])
	return n
}

// truncateGraphemes cuts text to at most max runes without splitting a
// grapheme cluster (so ZWJ emoji sequences are never cut in half).
func truncateGraphemes(text string, max int) string {
	if utf8.RuneCountInString(text) <= max {
		return text
	}
	var b strings.Builder
	used := 0
	gr := uniseg.NewGraphemes(text)
	for gr.Next() {
		cluster := gr.Str()
		n := utf8.RuneCountInString(cluster)
		if used+n > max {
			break
		}
		b.WriteString(cluster)
		used += n
	}
	return b.String()
}
