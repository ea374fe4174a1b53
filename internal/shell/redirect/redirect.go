// Package redirect resolves the "<file" and ">file" tokens of a single
// command into open descriptors, leaving a clean argv behind.
package redirect

import (
	"os"

	"github.com/pkg/errors"

	"github.com/gush-sh/gush/internal/shell/token"
)

// ErrMalformed indicates a redirection operator without a following file
// name.
var ErrMalformed = errors.New("malformed redirection")

const outputMode = 0o644

// Files holds the descriptors resolved for one command. A nil descriptor
// means the child inherits the shell's stream.
type Files struct {
	In  *os.File
	Out *os.File
}

// Close releases both descriptors. Safe to call on partially resolved or
// zero Files.
func (f *Files) Close() {
	if f.In != nil {
		f.In.Close()
		f.In = nil
	}
	if f.Out != nil {
		f.Out.Close()
		f.Out = nil
	}
}

// Resolve scans the tokens of one command, opens every redirection target,
// and returns the remaining words as argv. When the same direction is
// redirected twice the earlier descriptor is closed before the later open.
// On error all descriptors opened so far are closed.
func Resolve(toks []token.Token) ([]string, Files, error) {
	var files Files
	argv := make([]string, 0, len(toks))

	for i := 0; i < len(toks); i++ {
		t := toks[i]
		switch t.Kind {
		case token.Word:
			argv = append(argv, t.Lit)
			continue
		case token.RedirIn, token.RedirOut:
		default:
			files.Close()
			return nil, Files{}, errors.Wrapf(ErrMalformed, "unexpected %q", t.Lit)
		}

		if i+1 >= len(toks) || toks[i+1].Kind != token.Word {
			files.Close()
			return nil, Files{}, errors.Wrapf(ErrMalformed, "%q not followed by a file name", t.Lit)
		}
		name := toks[i+1].Lit
		i++

		if t.Kind == token.RedirIn {
			if files.In != nil {
				files.In.Close()
			}
			fd, err := os.Open(name)
			if err != nil {
				files.Close()
				return nil, Files{}, err
			}
			files.In = fd
			continue
		}

		if files.Out != nil {
			files.Out.Close()
		}
		fd, err := os.OpenFile(name, os.O_WRONLY|os.O_CREATE, outputMode)
		if err != nil {
			files.Close()
			return nil, Files{}, err
		}
		files.Out = fd
	}

	return argv, files, nil
}
