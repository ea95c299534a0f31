// Package rdf holds the statement model shared by extraction, aggregation
// and export, and its line-oriented N-Triples encoding.
//
// Terms and statements are plain comparable values so that exact-match
// deduplication is a map lookup.
package rdf

import (
	"strings"
)

// TermKind distinguishes the three RDF term forms.
type TermKind uint8

const (
	KindIRI TermKind = iota + 1
	KindBlank
	KindLiteral
)

func (k TermKind) String() string {
	switch k {
	case KindIRI:
		return "iri"
	case KindBlank:
		return "blank"
	case KindLiteral:
		return "literal"
	default:
		return "invalid"
	}
}

// Term is one position of a statement.
//
// Datatype and Lang are only meaningful for literals. A literal typed
// xsd:string is stored with an empty Datatype so that "x" and
// "x"^^xsd:string compare equal.
type Term struct {
	Kind     TermKind
	Value    string
	Datatype string
	Lang     string
}

// IRI returns an IRI term.
func IRI(v string) Term { return Term{Kind: KindIRI, Value: v} }

// Blank returns a blank node with the given label (without the "_:" prefix).
func Blank(id string) Term { return Term{Kind: KindBlank, Value: id} }

// Literal returns a plain string literal.
func Literal(v string) Term { return Term{Kind: KindLiteral, Value: v} }

// TypedLiteral returns a literal with a datatype IRI.
func TypedLiteral(v, datatype string) Term {
	if datatype == XSDString {
		datatype = ""
	}
	return Term{Kind: KindLiteral, Value: v, Datatype: datatype}
}

// LangLiteral returns a language-tagged literal. Tags are case-insensitive
// and stored lower-cased.
func LangLiteral(v, lang string) Term {
	return Term{Kind: KindLiteral, Value: v, Lang: strings.ToLower(lang)}
}

func (t Term) IsIRI() bool     { return t.Kind == KindIRI }
func (t Term) IsBlank() bool   { return t.Kind == KindBlank }
func (t Term) IsLiteral() bool { return t.Kind == KindLiteral }

// String renders the term in N-Triples syntax.
func (t Term) String() string {
	var b strings.Builder
	t.writeTo(&b)
	return b.String()
}

func (t Term) writeTo(b *strings.Builder) {
	switch t.Kind {
	case KindIRI:
		b.WriteByte('<')
		escapeIRI(b, t.Value)
		b.WriteByte('>')
	case KindBlank:
		b.WriteString("_:")
		b.WriteString(t.Value)
	case KindLiteral:
		b.WriteByte('"')
		escapeLiteral(b, t.Value)
		b.WriteByte('"')
		switch {
		case t.Lang != "":
			b.WriteByte('@')
			b.WriteString(t.Lang)
		case t.Datatype != "":
			b.WriteString("^^<")
			escapeIRI(b, t.Datatype)
			b.WriteByte('>')
		}
	}
}

// Statement is a subject-predicate-object triple.
type Statement struct {
	Subject   Term
	Predicate Term
	Object    Term
}

// Triple builds a statement.
func Triple(s, p, o Term) Statement {
	return Statement{Subject: s, Predicate: p, Object: o}
}

// Valid reports whether each position holds a term kind N-Triples allows there.
func (s Statement) Valid() bool {
	return (s.Subject.IsIRI() || s.Subject.IsBlank()) &&
		s.Predicate.IsIRI() &&
		s.Object.Kind >= KindIRI && s.Object.Kind <= KindLiteral
}

// String renders the statement as one N-Triples line without the trailing newline.
func (s Statement) String() string {
	var b strings.Builder
	s.Subject.writeTo(&b)
	b.WriteByte(' ')
	s.Predicate.writeTo(&b)
	b.WriteByte(' ')
	s.Object.writeTo(&b)
	b.WriteString(" .")
	return b.String()
}
