// Package turtle parses, validates, and serializes RDF 1.1 Turtle
// documents. Parsing goes through knakk/rdf; serialization writes
// prefix-abbreviated Turtle grouped by subject.
package turtle

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/knakk/rdf"
)

// ErrParse wraps every syntax error from the decoder; the wrapped
// message carries the parser's line/column detail.
var ErrParse = errors.New("turtle parse")

// Well-known vocabulary IRIs.
const (
	RDFType        = "http://www.w3.org/1999/02/22-rdf-syntax-ns#type"
	RDFSSubClassOf = "http://www.w3.org/2000/01/rdf-schema#subClassOf"
	RDFSLabel      = "http://www.w3.org/2000/01/rdf-schema#label"
	OWLClass       = "http://www.w3.org/2002/07/owl#Class"

	xsdString     = "http://www.w3.org/2001/XMLSchema#string"
	rdfLangString = "http://www.w3.org/1999/02/22-rdf-syntax-ns#langString"
)

// Triple is one parsed statement with plain-string terms. Blank node
// subjects/objects keep their "_:" prefix. For literal objects, Lang
// holds the language tag and Datatype the datatype IRI; a plain string
// literal leaves both empty (xsd:string is the implied default and is
// never stored explicitly).
type Triple struct {
	Subject   string
	Predicate string
	Object    string
	IsLiteral bool
	Datatype  string
	Lang      string
}

// Parse decodes a Turtle document. The error carries the parser's
// message (line/column) for the caller to surface.
func Parse(content string) ([]Triple, error) {
	dec := rdf.NewTripleDecoder(strings.NewReader(content), rdf.Turtle)
	raw, err := dec.DecodeAll()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}

	triples := make([]Triple, 0, len(raw))
	for _, t := range raw {
		out := Triple{
			Subject:   termString(t.Subj),
			Predicate: termString(t.Pred),
		}
		if lit, ok := t.Obj.(rdf.Literal); ok {
			out.Object = lit.String()
			out.IsLiteral = true
			out.Lang = lit.Lang()
			// rdf:langString is implied by the tag and xsd:string by
			// the absence of any annotation; neither is stored.
			if dt := lit.DataType.String(); out.Lang == "" && dt != xsdString && dt != rdfLangString {
				out.Datatype = dt
			}
		} else {
			out.Object = termString(t.Obj)
		}
		triples = append(triples, out)
	}
	return triples, nil
}

func termString(t rdf.Term) string {
	if b, ok := t.(rdf.Blank); ok {
		return "_:" + strings.TrimPrefix(b.String(), "_:")
	}
	return t.String()
}

// Validate reports whether content is syntactically well-formed Turtle.
func Validate(content string) error {
	_, err := Parse(content)
	return err
}

// DefaultPrefixes returns the namespace table used when serializing
// ontology snapshots.
func DefaultPrefixes() map[string]string {
	return map[string]string{
		"rdf":  "http://www.w3.org/1999/02/22-rdf-syntax-ns#",
		"rdfs": "http://www.w3.org/2000/01/rdf-schema#",
		"owl":  "http://www.w3.org/2002/07/owl#",
		"xsd":  "http://www.w3.org/2001/XMLSchema#",
		"bfo":  "http://purl.obolibrary.org/obo/",
	}
}

// Serialize writes triples as Turtle, statements grouped by subject in
// first-seen order. Round-trips through Parse with the same triple
// count; comments and blank lines of the source are not preserved.
func Serialize(prefixes map[string]string, triples []Triple) string {
	var sb strings.Builder

	names := make([]string, 0, len(prefixes))
	for name := range prefixes {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(&sb, "@prefix %s: <%s> .\n", name, prefixes[name])
	}
	if len(names) > 0 {
		sb.WriteString("\n")
	}

	var order []string
	bySubject := make(map[string][]Triple)
	for _, t := range triples {
		if _, seen := bySubject[t.Subject]; !seen {
			order = append(order, t.Subject)
		}
		bySubject[t.Subject] = append(bySubject[t.Subject], t)
	}

	for _, subject := range order {
		group := bySubject[subject]
		sb.WriteString(formatTerm(subject, names, prefixes) + "\n")
		for i, t := range group {
			pred := formatTerm(t.Predicate, names, prefixes)
			if t.Predicate == RDFType {
				pred = "a"
			}
			obj := formatObject(t, names, prefixes)
			sep := " ;"
			if i == len(group)-1 {
				sep = " ."
			}
			fmt.Fprintf(&sb, "    %s %s%s\n", pred, obj, sep)
		}
		sb.WriteString("\n")
	}

	return sb.String()
}

func formatObject(t Triple, names []string, prefixes map[string]string) string {
	if !t.IsLiteral {
		return formatTerm(t.Object, names, prefixes)
	}
	quoted := quoteLiteral(t.Object)
	if t.Lang != "" {
		return quoted + "@" + t.Lang
	}
	if t.Datatype != "" {
		return quoted + "^^" + formatTerm(t.Datatype, names, prefixes)
	}
	return quoted
}

// formatTerm abbreviates a URI against the prefix table when the local
// part is a valid prefixed name, otherwise writes it in angle brackets.
func formatTerm(uri string, names []string, prefixes map[string]string) string {
	if strings.HasPrefix(uri, "_:") {
		return uri
	}
	for _, name := range names {
		ns := prefixes[name]
		if ns == "" || !strings.HasPrefix(uri, ns) {
			continue
		}
		local := uri[len(ns):]
		if local != "" && validLocalName(local) {
			return name + ":" + local
		}
	}
	return "<" + uri + ">"
}

func validLocalName(local string) bool {
	for _, r := range local {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '_' || r == '-':
		default:
			return false
		}
	}
	return true
}

func quoteLiteral(s string) string {
	var sb strings.Builder
	sb.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			sb.WriteString(`\"`)
		case '\\':
			sb.WriteString(`\\`)
		case '\n':
			sb.WriteString(`\n`)
		case '\r':
			sb.WriteString(`\r`)
		case '\t':
			sb.WriteString(`\t`)
		default:
			sb.WriteRune(r)
		}
	}
	sb.WriteByte('"')
	return sb.String()
}
