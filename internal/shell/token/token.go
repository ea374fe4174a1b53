// Package token defines the shell's lexical vocabulary and the utilities the
// evaluator uses to classify a command line: word splitting, separator
// classification, background-flag stripping, and pipeline stage splitting.
package token

import (
	"github.com/kballard/go-shellquote"
	"github.com/pkg/errors"
)

// Kind classifies a single token.
type Kind int

const (
	// Word is a literal string, one argv element.
	Word Kind = iota
	// RedirIn is the input redirection operator "<".
	RedirIn
	// RedirOut is the output redirection operator ">".
	RedirOut
	// Pipe is the stage separator "|".
	Pipe
	// Background is the trailing "&" marker.
	Background
)

// Token is one item of a lexed command line.
type Token struct {
	Kind Kind
	Lit  string
}

var (
	// ErrSyntax indicates the token stream violates the command grammar.
	ErrSyntax = errors.New("syntax error")
)

// Lex splits a raw command line into tokens. Words follow shell quoting
// rules; the separators "<", ">", "|" and "&" must stand alone.
func Lex(line string) ([]Token, error) {
	words, err := shellquote.Split(line)
	if err != nil {
		return nil, errors.Wrap(ErrSyntax, err.Error())
	}

	toks := make([]Token, 0, len(words))
	for _, w := range words {
		toks = append(toks, Token{Kind: classify(w), Lit: w})
	}
	return toks, nil
}

func classify(word string) Kind {
	switch word {
	case "<":
		return RedirIn
	case ">":
		return RedirOut
	case "|":
		return Pipe
	case "&":
		return Background
	}
	return Word
}

// StripBackground removes a trailing "&" and reports whether one was
// present. An "&" anywhere else is a syntax error.
func StripBackground(toks []Token) ([]Token, bool, error) {
	background := false
	if n := len(toks); n > 0 && toks[n-1].Kind == Background {
		toks = toks[:n-1]
		background = true
	}
	for _, t := range toks {
		if t.Kind == Background {
			return nil, false, errors.Wrap(ErrSyntax, "'&' may only end a command")
		}
	}
	return toks, background, nil
}

// HasPipe reports whether the tokens form a pipeline.
func HasPipe(toks []Token) bool {
	for _, t := range toks {
		if t.Kind == Pipe {
			return true
		}
	}
	return false
}

// Split cuts the tokens at each "|" into pipeline stages. Every stage must
// contain at least one token.
func Split(toks []Token) ([][]Token, error) {
	var stages [][]Token
	stage := make([]Token, 0, len(toks))
	for _, t := range toks {
		if t.Kind != Pipe {
			stage = append(stage, t)
			continue
		}
		if len(stage) == 0 {
			return nil, errors.Wrap(ErrSyntax, "empty pipeline stage")
		}
		stages = append(stages, stage)
		stage = nil
	}
	if len(stage) == 0 {
		return nil, errors.Wrap(ErrSyntax, "empty pipeline stage")
	}
	return append(stages, stage), nil
}

// Words extracts the literal strings of every Word token.
func Words(toks []Token) []string {
	words := make([]string, 0, len(toks))
	for _, t := range toks {
		if t.Kind == Word {
			words = append(words, t.Lit)
		}
	}
	return words
}
