package letters

import (
	"strings"
	"testing"
)

func TestDefaultAlphabet(t *testing.T) {
	s := NewSource("")
	if s.Alphabet() != DefaultAlphabet {
		t.Fatalf("alphabet = %q", s.Alphabet())
	}
	for _, skip := range []string{"Q", "X", "Y", "Z"} {
		if strings.Contains(s.Alphabet(), skip) {
			t.Fatalf("alphabet contains %s", skip)
		}
	}
}

func TestDrawStaysInAlphabet(t *testing.T) {
	s := NewSource("abc")
	if s.Alphabet() != "ABC" {
		t.Fatalf("alphabet not uppercased: %q", s.Alphabet())
	}
	for i := 0; i < 100; i++ {
		l := s.Draw()
		if len(l) != 1 || !strings.Contains("ABC", l) {
			t.Fatalf("draw %q outside alphabet", l)
		}
	}
}

func TestSingleLetterAlphabet(t *testing.T) {
	s := NewSource("A")
	for i := 0; i < 10; i++ {
		if s.Draw() != "A" {
			t.Fatal("single-letter alphabet drew something else")
		}
	}
}
