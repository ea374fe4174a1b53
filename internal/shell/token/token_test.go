package token

import (
	"errors"
	"reflect"
	"testing"
)

func TestLex(t *testing.T) {
	tests := map[string]struct {
		line     string
		expected []Token
	}{
		"simple command": {
			line: "echo hi",
			expected: []Token{
				{Kind: Word, Lit: "echo"},
				{Kind: Word, Lit: "hi"},
			},
		},
		"pipeline with redirections": {
			line: "cat < in | sort > out",
			expected: []Token{
				{Kind: Word, Lit: "cat"},
				{Kind: RedirIn, Lit: "<"},
				{Kind: Word, Lit: "in"},
				{Kind: Pipe, Lit: "|"},
				{Kind: Word, Lit: "sort"},
				{Kind: RedirOut, Lit: ">"},
				{Kind: Word, Lit: "out"},
			},
		},
		"background": {
			line: "sleep 10 &",
			expected: []Token{
				{Kind: Word, Lit: "sleep"},
				{Kind: Word, Lit: "10"},
				{Kind: Background, Lit: "&"},
			},
		},
		"quoted word stays one argv element": {
			line: `echo "a b"`,
			expected: []Token{
				{Kind: Word, Lit: "echo"},
				{Kind: Word, Lit: "a b"},
			},
		},
		"empty line": {
			line:     "",
			expected: []Token{},
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			actual, err := Lex(test.line)
			if err != nil {
				t.Fatalf("unexpected error: %s", err)
			}
			if len(actual) == 0 && len(test.expected) == 0 {
				return
			}
			if !reflect.DeepEqual(actual, test.expected) {
				t.Fatalf("unexpected tokens; actual: %v, expected: %v", actual, test.expected)
			}
		})
	}
}

func TestLexUnterminatedQuote(t *testing.T) {
	if _, err := Lex(`echo "unterminated`); !errors.Is(err, ErrSyntax) {
		t.Fatalf("expected ErrSyntax; actual: %v", err)
	}
}

func TestStripBackground(t *testing.T) {
	toks, err := Lex("sleep 10 &")
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	toks, background, err := StripBackground(toks)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if !background {
		t.Fatalf("expected background flag")
	}
	if expected := []string{"sleep", "10"}; !reflect.DeepEqual(Words(toks), expected) {
		t.Fatalf("unexpected words; actual: %v, expected: %v", Words(toks), expected)
	}
}

func TestStripBackgroundOnlyAmpersand(t *testing.T) {
	toks, err := Lex("&")
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	toks, background, err := StripBackground(toks)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if !background {
		t.Fatalf("expected background flag")
	}
	if len(toks) != 0 {
		t.Fatalf("expected no tokens; actual: %v", toks)
	}
}

func TestStripBackgroundMisplaced(t *testing.T) {
	toks, err := Lex("sleep & 10")
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	if _, _, err := StripBackground(toks); !errors.Is(err, ErrSyntax) {
		t.Fatalf("expected ErrSyntax; actual: %v", err)
	}
}

func TestSplit(t *testing.T) {
	toks, err := Lex("yes | head -n 3")
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	stages, err := Split(toks)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if len(stages) != 2 {
		t.Fatalf("unexpected stage count; actual: %d, expected: 2", len(stages))
	}
	if expected := []string{"yes"}; !reflect.DeepEqual(Words(stages[0]), expected) {
		t.Fatalf("unexpected first stage; actual: %v", Words(stages[0]))
	}
	if expected := []string{"head", "-n", "3"}; !reflect.DeepEqual(Words(stages[1]), expected) {
		t.Fatalf("unexpected second stage; actual: %v", Words(stages[1]))
	}
}

func TestSplitEmptyStage(t *testing.T) {
	for _, line := range []string{"| cat", "yes |", "yes | | cat"} {
		toks, err := Lex(line)
		if err != nil {
			t.Fatalf("unexpected error: %s", err)
		}
		if _, err := Split(toks); !errors.Is(err, ErrSyntax) {
			t.Fatalf("expected ErrSyntax for %q; actual: %v", line, err)
		}
	}
}

func TestHasPipe(t *testing.T) {
	piped, err := Lex("yes | head")
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if !HasPipe(piped) {
		t.Fatalf("expected pipeline")
	}

	single, err := Lex("echo hi")
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if HasPipe(single) {
		t.Fatalf("expected single command")
	}
}
