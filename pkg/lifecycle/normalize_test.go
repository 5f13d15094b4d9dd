package lifecycle

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"whitespace only", " \t\n \r\n ", ""},
		{"single line", "  hello  ", "hello"},
		{"trims each line", "  a  \n\t b\t\n c ", "a\nb\nc"},
		{"keeps inner blank lines", "a\n\n\nb", "a\n\n\nb"},
		{"crlf", "a\r\nb\r\n", "a\nb"},
		{"inner spaces kept", "a  b", "a  b"},
		{"leading blank lines", "\n\n  x", "x"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeText(tt.in))
		})
	}
}

func TestNormalizeTextIdempotent(t *testing.T) {
	alphabet := []rune{'a', 'b', ' ', '\t', '\n', '\r', '\v', ' ', ' ', 'é'}
	rng := rand.New(rand.NewPCG(1, 2))

	for i := 0; i < 2000; i++ {
		runes := make([]rune, rng.IntN(24))
		for j := range runes {
			runes[j] = alphabet[rng.IntN(len(alphabet))]
		}
		s := string(runes)
		once := NormalizeText(s)
		assert.Equal(t, once, NormalizeText(once), "input %q", s)
	}
}

func TestOutcomeKind(t *testing.T) {
	assert.Equal(t, "deliver", OutcomeDeliver.String())
	assert.Equal(t, "unknown", OutcomeKind(99).String())
	assert.True(t, OutcomeExpired.IsTerminal())
	assert.False(t, OutcomePasswordRequired.IsTerminal())
	assert.False(t, OutcomeWrongPassword.IsTerminal())

	var nilOutcome *Outcome
	assert.False(t, nilOutcome.NeedsCompletion())
}
