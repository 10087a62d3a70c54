package letters

import (
	"crypto/rand"
	"math/big"
	"strings"
)

// DefaultAlphabet omits Q, X, Y and Z: too few tech terms start with them.
const DefaultAlphabet = "ABCDEFGHIJKLMNOPRSTUVW"

// Source draws prompt letters for rounds.
type Source struct {
	alphabet string
}

func NewSource(alphabet string) *Source {
	a := strings.ToUpper(strings.TrimSpace(alphabet))
	if a == "" {
		a = DefaultAlphabet
	}
	return &Source{alphabet: a}
}

// Draw returns one letter chosen uniformly from the alphabet.
func (s *Source) Draw() string {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(len(s.alphabet))))
	if err != nil {
		return s.alphabet[:1]
	}
	i := int(n.Int64())
	return s.alphabet[i : i+1]
}

func (s *Source) Alphabet() string { return s.alphabet }
