package moderation

import (
	"bufio"
	"comment-hub/contract"
	"comment-hub/domain"
	_ "embed"
	"log/slog"
	"strings"
	"unicode"

	"github.com/abadojack/whatlanggo"
	goahocorasick "github.com/anknown/ahocorasick"
)

//go:embed blocklist/en.txt
var defaultBlocklist string

// DefaultBlocklist returns the embedded list of terms that force a comment
// into review.
func DefaultBlocklist() []string {
	var words []string
	scanner := bufio.NewScanner(strings.NewReader(defaultBlocklist))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		words = append(words, line)
	}
	return words
}

// Screener is the shipped contract.Screener: an Aho-Corasick blocklist
// matcher resistant to leet speak and punctuation noise. A match forces the
// comment to pending even under an auto-approve policy; no match yields
// approved or pending depending on that policy.
type Screener struct {
	matcher     *goahocorasick.Machine
	autoApprove bool
	log         *slog.Logger
}

var _ contract.Screener = (*Screener)(nil)

// NewScreener initializes the automaton with a normalized version of the
// provided blocklist.
func NewScreener(words []string, autoApprove bool, log *slog.Logger) (*Screener, error) {
	patterns := make([][]rune, len(words))
	for i, word := range words {
		patterns[i] = normalizeRunes([]rune(word))
	}

	m := new(goahocorasick.Machine)
	if err := m.Build(patterns); err != nil {
		return nil, err
	}
	return &Screener{matcher: m, autoApprove: autoApprove, log: log}, nil
}

func (s *Screener) Screen(body string) contract.ScreenResult {
	result := contract.ScreenResult{Status: domain.StatusPending}
	if s.autoApprove {
		result.Status = domain.StatusApproved
	}

	info := whatlanggo.Detect(body)
	result.Lang = info.Lang.Iso6391()

	normalized := normalizeRunes([]rune(body))
	if len(normalized) == 0 {
		return result
	}
	spans := s.matcher.MultiPatternSearch(normalized, false)
	for _, span := range spans {
		result.Matched = append(result.Matched, string(span.Word))
	}
	if len(result.Matched) > 0 {
		result.Status = domain.StatusPending
	}
	return result
}

// normalizeRunes lowercases, strips punctuation noise, and maps common leet
// speak characters back to their standard alphabet counterparts.
func normalizeRunes(input []rune) []rune {
	out := make([]rune, 0, len(input))
	for _, r := range input {
		clean := simplifyRune(r)
		if isNoise(clean) {
			continue
		}
		out = append(out, unicode.ToLower(clean))
	}
	return out
}

func simplifyRune(r rune) rune {
	switch r {
	case '4', '@':
		return 'a'
	case '3', '€':
		return 'e'
	case '1', '!', '|':
		return 'i'
	case '0':
		return 'o'
	case '5', '$':
		return 's'
	default:
		return r
	}
}

func isNoise(r rune) bool {
	return unicode.IsPunct(r) || unicode.IsSpace(r) || unicode.IsSymbol(r)
}
