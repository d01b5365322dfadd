package moderation

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"comment-hub/domain"
)

func newTestScreener(t *testing.T, autoApprove bool) *Screener {
	t.Helper()
	s, err := NewScreener([]string{"casino", "free money"}, autoApprove, slog.Default())
	require.NoError(t, err)
	return s
}

func Test_Screen_CleanBodyFollowsPolicy(t *testing.T) {
	req := require.New(t)

	result := newTestScreener(t, false).Screen("What a thoughtful article, thanks for writing it.")
	req.Equal(domain.StatusPending, result.Status)
	req.Empty(result.Matched)

	result = newTestScreener(t, true).Screen("What a thoughtful article, thanks for writing it.")
	req.Equal(domain.StatusApproved, result.Status)
}

func Test_Screen_MatchOverridesAutoApprove(t *testing.T) {
	req := require.New(t)
	s := newTestScreener(t, true)

	result := s.Screen("come visit my casino tonight")
	req.Equal(domain.StatusPending, result.Status)
	req.Contains(result.Matched, "casino")
}

func Test_Screen_ResistsLeetSpeakAndNoise(t *testing.T) {
	req := require.New(t)
	s := newTestScreener(t, true)

	for _, body := range []string{
		"c4sin0 bonuses for everyone",
		"c.a.s.i.n.o",
		"CASINO!!!",
		"fr33 m0ney here",
	} {
		result := s.Screen(body)
		req.Equal(domain.StatusPending, result.Status, "body %q should be held", body)
		req.NotEmpty(result.Matched, "body %q should match", body)
	}
}

func Test_Screen_DetectsLanguage(t *testing.T) {
	req := require.New(t)
	s := newTestScreener(t, true)

	result := s.Screen("This is a perfectly reasonable English sentence about gardening and the weather today.")
	req.Equal("en", result.Lang)
}

func Test_Screen_EmptyAfterNormalization(t *testing.T) {
	req := require.New(t)
	s := newTestScreener(t, true)

	result := s.Screen("... !!! ???")
	req.Equal(domain.StatusApproved, result.Status)
	req.Empty(result.Matched)
}

func Test_DefaultBlocklist_SkipsCommentsAndBlanks(t *testing.T) {
	req := require.New(t)

	words := DefaultBlocklist()
	req.NotEmpty(words)
	for _, w := range words {
		req.NotEmpty(w)
		req.NotContains(w, "#")
	}
}
