package config

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

var (
	errUnterminatedQuote  = errors.New("unterminated quote")
	errUnterminatedEscape = errors.New("unterminated escape sequence")
)

// ParseCommand splits a command line such as clipboard_cmd into argv.
// Quoting follows the shell: single quotes are literal, double quotes
// honor \" and \\, and a backslash elsewhere escapes the next rune. An
// empty line or one starting with '#' yields no argv, which disables the
// command.
func ParseCommand(raw string) (CommandConfig, error) {
	line := strings.TrimSpace(raw)
	if line == "" || strings.HasPrefix(line, "#") {
		return CommandConfig{Raw: raw}, nil
	}

	lex := commandLexer{input: []rune(line)}
	var argv []string
	for {
		word, ok, err := lex.next()
		if err != nil {
			return CommandConfig{}, fmt.Errorf("%w in command %q", err, line)
		}
		if !ok {
			break
		}
		argv = append(argv, word)
	}
	return CommandConfig{Raw: raw, Argv: argv}, nil
}

func parseCommand(key string, raw string) (CommandConfig, error) {
	cmd, err := ParseCommand(raw)
	if err != nil {
		return CommandConfig{}, fmt.Errorf("invalid %s: %w", key, err)
	}
	return cmd, nil
}

type commandLexer struct {
	input []rune
	pos   int
}

// next returns the following word; ok is false at end of input.
func (l *commandLexer) next() (word string, ok bool, err error) {
	for l.pos < len(l.input) && unicode.IsSpace(l.input[l.pos]) {
		l.pos++
	}
	if l.pos >= len(l.input) {
		return "", false, nil
	}

	var b strings.Builder
	for l.pos < len(l.input) {
		r := l.input[l.pos]
		switch {
		case unicode.IsSpace(r):
			return b.String(), true, nil
		case r == '\'':
			end := l.indexFrom(l.pos+1, '\'')
			if end < 0 {
				return "", false, errUnterminatedQuote
			}
			b.WriteString(string(l.input[l.pos+1 : end]))
			l.pos = end + 1
		case r == '"':
			if err := l.readDoubleQuoted(&b); err != nil {
				return "", false, err
			}
		case r == '\\':
			if l.pos+1 >= len(l.input) {
				return "", false, errUnterminatedEscape
			}
			b.WriteRune(l.input[l.pos+1])
			l.pos += 2
		default:
			b.WriteRune(r)
			l.pos++
		}
	}
	return b.String(), true, nil
}

func (l *commandLexer) readDoubleQuoted(b *strings.Builder) error {
	l.pos++
	for l.pos < len(l.input) {
		r := l.input[l.pos]
		switch {
		case r == '"':
			l.pos++
			return nil
		case r == '\\' && l.pos+1 < len(l.input) && (l.input[l.pos+1] == '"' || l.input[l.pos+1] == '\\'):
			b.WriteRune(l.input[l.pos+1])
			l.pos += 2
		default:
			b.WriteRune(r)
			l.pos++
		}
	}
	return errUnterminatedQuote
}

func (l *commandLexer) indexFrom(start int, target rune) int {
	for i := start; i < len(l.input); i++ {
		if l.input[i] == target {
			return i
		}
	}
	return -1
}
