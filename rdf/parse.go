package rdf

import (
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/teranos/pwcmeta/errors"
)

// ErrSyntax marks lines that are not one complete N-Triples statement.
// It is also marked as errors.ErrPartialArtifact: in this pipeline a broken
// line almost always means an artifact that was cut short.
var ErrSyntax = errors.New("n-triples syntax error")

// ParseLine decodes exactly one statement. Leading and trailing whitespace
// and a trailing comment are allowed; anything else, including a missing
// " ." terminator, is rejected.
func ParseLine(line string) (Statement, error) {
	p := &lineParser{src: line}
	st, err := p.statement()
	if err != nil {
		return Statement{}, errors.Mark(errors.Mark(
			errors.Wrapf(err, "column %d", p.pos+1), ErrSyntax), errors.ErrPartialArtifact)
	}
	return st, nil
}

// IsBlankOrComment reports whether a line carries no statement.
func IsBlankOrComment(line string) bool {
	trimmed := strings.TrimLeft(line, " \t\r")
	return trimmed == "" || trimmed[0] == '#'
}

type lineParser struct {
	src string
	pos int
}

func (p *lineParser) statement() (Statement, error) {
	p.skipSpace()
	subj, err := p.term()
	if err != nil {
		return Statement{}, err
	}
	if subj.IsLiteral() {
		return Statement{}, errors.New("literal in subject position")
	}
	if err := p.requireSpace(); err != nil {
		return Statement{}, err
	}

	pred, err := p.term()
	if err != nil {
		return Statement{}, err
	}
	if !pred.IsIRI() {
		return Statement{}, errors.New("predicate must be an IRI")
	}
	if err := p.requireSpace(); err != nil {
		return Statement{}, err
	}

	obj, err := p.term()
	if err != nil {
		return Statement{}, err
	}

	p.skipSpace()
	if !p.consume('.') {
		return Statement{}, errors.New("missing terminating '.'")
	}
	p.skipSpace()
	if p.pos < len(p.src) && p.src[p.pos] != '#' {
		return Statement{}, errors.Newf("unexpected trailing text %q", p.src[p.pos:])
	}
	return Triple(subj, pred, obj), nil
}

func (p *lineParser) term() (Term, error) {
	if p.pos >= len(p.src) {
		return Term{}, errors.New("unexpected end of line")
	}
	switch p.src[p.pos] {
	case '<':
		v, err := p.iriRef()
		if err != nil {
			return Term{}, err
		}
		return IRI(v), nil
	case '_':
		return p.blankNode()
	case '"':
		return p.literal()
	default:
		return Term{}, errors.Newf("unexpected character %q", p.src[p.pos])
	}
}

func (p *lineParser) iriRef() (string, error) {
	p.pos++ // '<'
	var b strings.Builder
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		switch {
		case c == '>':
			p.pos++
			if b.Len() == 0 {
				return "", errors.New("empty IRI")
			}
			return b.String(), nil
		case c == '\\':
			r, err := p.uchar()
			if err != nil {
				return "", err
			}
			b.WriteRune(r)
		case c <= 0x20 || strings.IndexByte("<\"{}|^`", c) >= 0:
			return "", errors.Newf("invalid character %q in IRI", c)
		default:
			b.WriteByte(c)
			p.pos++
		}
	}
	return "", errors.New("unterminated IRI")
}

func (p *lineParser) blankNode() (Term, error) {
	if !strings.HasPrefix(p.src[p.pos:], "_:") {
		return Term{}, errors.New("malformed blank node")
	}
	p.pos += 2
	start := p.pos
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		if c == ' ' || c == '\t' {
			break
		}
		if !isLabelByte(c) {
			return Term{}, errors.Newf("invalid character %q in blank node label", c)
		}
		p.pos++
	}
	label := p.src[start:p.pos]
	// a label may contain '.' but not end with it
	if label == "" || strings.HasSuffix(label, ".") {
		return Term{}, errors.New("malformed blank node label")
	}
	return Blank(label), nil
}

func isLabelByte(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' ||
		c == '_' || c == '-' || c == '.' || c >= 0x80
}

func (p *lineParser) literal() (Term, error) {
	p.pos++ // opening quote
	var b strings.Builder
	closed := false
	for p.pos < len(p.src) && !closed {
		c := p.src[p.pos]
		switch c {
		case '"':
			p.pos++
			closed = true
		case '\\':
			if p.pos+1 >= len(p.src) {
				return Term{}, errors.New("dangling escape")
			}
			switch p.src[p.pos+1] {
			case 'u', 'U':
				r, err := p.uchar()
				if err != nil {
					return Term{}, err
				}
				b.WriteRune(r)
				continue
			case 't':
				b.WriteByte('\t')
			case 'b':
				b.WriteByte('\b')
			case 'n':
				b.WriteByte('\n')
			case 'r':
				b.WriteByte('\r')
			case 'f':
				b.WriteByte('\f')
			case '"':
				b.WriteByte('"')
			case '\'':
				b.WriteByte('\'')
			case '\\':
				b.WriteByte('\\')
			default:
				return Term{}, errors.Newf("unknown escape \\%c", p.src[p.pos+1])
			}
			p.pos += 2
		case '\n', '\r':
			return Term{}, errors.New("raw line break in literal")
		default:
			b.WriteByte(c)
			p.pos++
		}
	}
	if !closed {
		return Term{}, errors.New("unterminated literal")
	}

	value := b.String()
	if !utf8.ValidString(value) {
		return Term{}, errors.New("literal is not valid UTF-8")
	}

	switch {
	case strings.HasPrefix(p.src[p.pos:], "^^"):
		p.pos += 2
		if p.pos >= len(p.src) || p.src[p.pos] != '<' {
			return Term{}, errors.New("datatype must be an IRI")
		}
		dt, err := p.iriRef()
		if err != nil {
			return Term{}, err
		}
		return TypedLiteral(value, dt), nil
	case p.consume('@'):
		start := p.pos
		for p.pos < len(p.src) && isLangByte(p.src[p.pos]) {
			p.pos++
		}
		lang := p.src[start:p.pos]
		if lang == "" || lang[0] == '-' || strings.HasSuffix(lang, "-") {
			return Term{}, errors.New("malformed language tag")
		}
		return LangLiteral(value, lang), nil
	}
	return Literal(value), nil
}

func isLangByte(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '-'
}

// uchar decodes \uXXXX or \UXXXXXXXX at the cursor.
func (p *lineParser) uchar() (rune, error) {
	if p.pos+1 >= len(p.src) {
		return 0, errors.New("dangling escape")
	}
	var n int
	switch p.src[p.pos+1] {
	case 'u':
		n = 4
	case 'U':
		n = 8
	default:
		return 0, errors.Newf("unknown escape \\%c", p.src[p.pos+1])
	}
	start := p.pos + 2
	if start+n > len(p.src) {
		return 0, errors.New("truncated unicode escape")
	}
	v, err := strconv.ParseUint(p.src[start:start+n], 16, 32)
	if err != nil {
		return 0, errors.Newf("invalid unicode escape %q", p.src[p.pos:start+n])
	}
	r := rune(v)
	if !utf8.ValidRune(r) {
		return 0, errors.Newf("invalid code point %U", r)
	}
	p.pos = start + n
	return r, nil
}

func (p *lineParser) consume(c byte) bool {
	if p.pos < len(p.src) && p.src[p.pos] == c {
		p.pos++
		return true
	}
	return false
}

func (p *lineParser) skipSpace() {
	for p.pos < len(p.src) && (p.src[p.pos] == ' ' || p.src[p.pos] == '\t' || p.src[p.pos] == '\r') {
		p.pos++
	}
}

func (p *lineParser) requireSpace() error {
	start := p.pos
	p.skipSpace()
	if p.pos == start {
		return errors.New("expected whitespace between terms")
	}
	return nil
}
