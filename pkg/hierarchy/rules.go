// Package hierarchy repairs the subClassOf taxonomy of an ontology
// snapshot: self-referencing classes, missing or generic parents, and
// leaves that belong under a narrower intermediate category.
package hierarchy

import (
	"strings"
	"unicode"

	ahocorasick "github.com/petar-dambovaliev/aho-corasick"
)

// Rule binds one keyword group to a base category. When Intermediate is
// set, matching classes are parented to the intermediate class instead,
// and the intermediate itself is made a subclass of Base.
type Rule struct {
	Name              string
	Keywords          []string
	Base              string
	Intermediate      string
	IntermediateLabel string
}

// Target returns the parent URI a matching class should point at.
func (r Rule) Target() string {
	if r.Intermediate != "" {
		return r.Intermediate
	}
	return r.Base
}

// DefaultRules is the ordered keyword table for engineering-ethics
// resource taxonomies; category URIs live under ns. Earlier rows win
// when a label matches more than one group.
func DefaultRules(ns string) []Rule {
	return []Rule{
		{
			Name:     "engineering-drawing",
			Keywords: []string{"drawing", "plan", "blueprint", "schematic"},
			Base:     ns + "EngineeringDrawing",
		},
		{
			Name:     "engineering-report",
			Keywords: []string{"report", "study", "analysis"},
			Base:     ns + "EngineeringReport",
		},
		{
			Name:     "building-code",
			Keywords: []string{"code", "standard", "regulation", "ordinance"},
			Base:     ns + "BuildingCode",
		},
		{
			Name:              "design-capability",
			Keywords:          []string{"design", "drafting", "modeling"},
			Base:              ns + "Capability",
			Intermediate:      ns + "DesignCapability",
			IntermediateLabel: "Design Capability",
		},
		{
			Name:              "assessment-capability",
			Keywords:          []string{"assessment", "evaluation", "inspection", "review"},
			Base:              ns + "Capability",
			Intermediate:      ns + "AssessmentCapability",
			IntermediateLabel: "Assessment Capability",
		},
	}
}

// Classifier matches normalized class labels against every rule's
// keywords in one automaton pass.
type Classifier struct {
	ac          ahocorasick.AhoCorasick
	patternRule []int // pattern index -> rule index
	patterns    int
}

// NewClassifier builds the keyword automaton for a rule table.
func NewClassifier(rules []Rule) *Classifier {
	var patterns []string
	var patternRule []int
	for i, r := range rules {
		for _, kw := range r.Keywords {
			patterns = append(patterns, strings.ToLower(kw))
			patternRule = append(patternRule, i)
		}
	}

	builder := ahocorasick.NewAhoCorasickBuilder(ahocorasick.Opts{
		AsciiCaseInsensitive: false, // labels are normalized to lowercase first
		MatchOnlyWholeWords:  true,
		MatchKind:            ahocorasick.StandardMatch, // required for IterOverlapping
		DFA:                  false,
	})

	return &Classifier{
		ac:          builder.Build(patterns),
		patternRule: patternRule,
		patterns:    len(patterns),
	}
}

// Classify returns the index of the first rule (in table order) whose
// keyword group matches the label, or -1 when nothing matches.
func (c *Classifier) Classify(label string) int {
	if c.patterns == 0 {
		return -1
	}

	best := -1
	iter := c.ac.IterOverlapping(NormalizeLabel(label))
	for {
		m := iter.Next()
		if m == nil {
			break
		}
		if idx := c.patternRule[m.Pattern()]; best == -1 || idx < best {
			best = idx
		}
	}
	return best
}

var labelStopwords = map[string]bool{
	"a": true, "an": true, "the": true,
	"of": true, "and": true, "or": true, "for": true,
	"type": true,
}

// NormalizeLabel lowercases a label or URI local name, splitting
// camelCase and punctuation into words and dropping filler words, so
// "SitePlanDrawing" and "site plan drawing" classify identically.
func NormalizeLabel(s string) string {
	var kept []string
	for _, w := range splitWords(s) {
		w = strings.ToLower(w)
		if labelStopwords[w] {
			continue
		}
		kept = append(kept, w)
	}
	return strings.Join(kept, " ")
}

func splitWords(s string) []string {
	var words []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			words = append(words, cur.String())
			cur.Reset()
		}
	}

	runes := []rune(s)
	for i, r := range runes {
		switch {
		case unicode.IsUpper(r):
			if i > 0 && unicode.IsLower(runes[i-1]) {
				flush()
			}
			cur.WriteRune(r)
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			cur.WriteRune(r)
		default:
			flush()
		}
	}
	flush()
	return words
}
