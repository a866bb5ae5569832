package hierarchy

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/ethicslab/ontostore/internal/store"
	"github.com/ethicslab/ontostore/pkg/turtle"
)

// ErrCycleDetected means the repaired class graph still contains a
// subClassOf cycle. It signals an internal invariant failure, not bad
// caller input, and no version is committed when it is returned.
var ErrCycleDetected = errors.New("hierarchy cycle detected")

// Store is the slice of the triple store the engine drives. Callers
// must serialize Run invocations per ontology; the compare-and-swap in
// UpdateContentFrom turns a lost race into store.ErrVersionConflict.
type Store interface {
	GetOntology(id int64) (*store.Ontology, error)
	CurrentVersion(id int64) (int, error)
	UpdateContentFrom(id int64, base int, content, commitMessage string) (int, error)
}

// Engine performs one read-modify-write repair cycle per Run: parse the
// current snapshot, fix structural defects in the class taxonomy, and
// commit the result as the next version. Once a snapshot is clean,
// further runs leave it untouched.
type Engine struct {
	store      Store
	rules      []Rule
	classifier *Classifier
	root       string
	externals  []string
	logger     *slog.Logger
}

// New creates an engine. root is the broadest meta-type URI, the
// fallback parent for classes no rule claims. A nil logger falls back
// to slog.Default().
func New(st Store, rules []Rule, root string, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:      st,
		rules:      rules,
		classifier: NewClassifier(rules),
		root:       root,
		logger:     logger,
	}
}

// RecognizeNamespaces registers IRI prefixes of imported ontologies
// (e.g. the OBO base for BFO classes). A subClassOf edge to a class
// under a recognized namespace is kept even though that class is not
// defined in the snapshot being repaired; without registration such an
// edge counts as dangling and is removed.
func (e *Engine) RecognizeNamespaces(prefixes ...string) {
	for _, p := range prefixes {
		if p != "" {
			e.externals = append(e.externals, p)
		}
	}
}

func (e *Engine) externalClass(uri string) bool {
	for _, ns := range e.externals {
		if strings.HasPrefix(uri, ns) {
			return true
		}
	}
	return false
}

// Report summarizes one repair run.
type Report struct {
	OntologyID     int64
	Version        int
	SelfReferences int
	Reparented     int
	Intermediates  int
	Unchanged      bool
}

// Run repairs the ontology's class taxonomy and commits a new version
// when anything changed. Class URIs are never altered, only label text
// and outgoing subClassOf edges.
func (e *Engine) Run(ontologyID int64) (*Report, error) {
	o, err := e.store.GetOntology(ontologyID)
	if err != nil {
		return nil, err
	}
	base, err := e.store.CurrentVersion(ontologyID)
	if err != nil {
		return nil, err
	}

	triples, err := turtle.Parse(o.Content)
	if err != nil {
		return nil, fmt.Errorf("ontology %d: %w", ontologyID, err)
	}

	nodes := buildClassGraph(triples)
	report := &Report{OntologyID: ontologyID, Version: base}

	category := map[string]bool{e.root: true}
	for _, r := range e.rules {
		category[r.Base] = true
		if r.Intermediate != "" {
			category[r.Intermediate] = true
		}
	}

	removals := make(map[turtle.Triple]bool)
	var additions []turtle.Triple

	removeEdge := func(child, parent string) {
		t := turtle.Triple{Subject: child, Predicate: turtle.RDFSSubClassOf, Object: parent}
		delete(nodes[child].Parents, parent)
		for i, a := range additions {
			if a == t {
				additions = append(additions[:i], additions[i+1:]...)
				return
			}
		}
		removals[t] = true
	}
	addEdge := func(child, parent string) {
		additions = append(additions, turtle.Triple{
			Subject: child, Predicate: turtle.RDFSSubClassOf, Object: parent,
		})
		nodes[child].Parents[parent] = true
	}

	// Single pass over all class nodes. Category classes themselves are
	// fixed points and never rewritten.
	needed := make(map[int]bool)
	for _, uri := range sortedURIs(nodes) {
		if category[uri] {
			continue
		}
		n := nodes[uri]

		if n.Parents[uri] {
			removeEdge(uri, uri)
			report.SelfReferences++
		}

		label := n.Label
		if label == "" {
			label = localName(uri)
		}
		ri := e.classifier.Classify(label)
		var rule *Rule
		target := e.root
		if ri >= 0 {
			rule = &e.rules[ri]
			target = rule.Target()
		}
		if target == uri {
			continue
		}

		hasTarget := false
		removedBad := false
		for _, p := range sortedParents(n) {
			switch {
			case p == target:
				hasTarget = true
			case rule != nil && rule.Intermediate != "" && p == rule.Base:
				// parked on the broad base while a narrower
				// intermediate applies
				removeEdge(uri, p)
				removedBad = true
			case rule != nil && p == e.root:
				removeEdge(uri, p)
				removedBad = true
			case category[p]:
				if rule != nil {
					// mis-filed under a different category
					removeEdge(uri, p)
					removedBad = true
				}
			case nodes[p] != nil:
				// parent is a class defined in this snapshot;
				// its own placement is repaired independently
			case e.externalClass(p):
				// class imported from a recognized upper ontology
			default:
				// dangling parent, not a class here and not a
				// recognized category
				removeEdge(uri, p)
				removedBad = true
			}
		}

		if !hasTarget && (removedBad || len(n.Parents) == 0) {
			addEdge(uri, target)
			report.Reparented++
			if rule != nil && rule.Intermediate != "" {
				needed[ri] = true
			}
		}
	}

	// Synthesize intermediate category classes that gained children but
	// are not yet defined in the snapshot.
	interIdx := make([]int, 0, len(needed))
	for i := range needed {
		interIdx = append(interIdx, i)
	}
	sort.Ints(interIdx)
	for _, i := range interIdx {
		r := e.rules[i]
		if _, defined := nodes[r.Intermediate]; defined {
			continue
		}
		additions = append(additions,
			turtle.Triple{Subject: r.Intermediate, Predicate: turtle.RDFType, Object: turtle.OWLClass},
			turtle.Triple{Subject: r.Intermediate, Predicate: turtle.RDFSLabel, Object: r.IntermediateLabel, IsLiteral: true},
			turtle.Triple{Subject: r.Intermediate, Predicate: turtle.RDFSSubClassOf, Object: r.Base},
		)
		nodes[r.Intermediate] = &classNode{
			URI:     r.Intermediate,
			Label:   r.IntermediateLabel,
			Parents: map[string]bool{r.Base: true},
		}
		report.Intermediates++
	}

	// Break any remaining cycles by cutting the closing edge. Each
	// iteration removes one edge, so this terminates.
	edgesLeft := 0
	for _, n := range nodes {
		edgesLeft += len(n.Parents)
	}
	for ; edgesLeft >= 0; edgesLeft-- {
		cycle := findCycle(nodes)
		if cycle == nil {
			break
		}
		child := cycle[len(cycle)-1]
		removeEdge(child, cycle[0])
		if len(nodes[child].Parents) == 0 {
			addEdge(child, e.root)
			report.Reparented++
		}
	}
	if findCycle(nodes) != nil {
		return nil, fmt.Errorf("ontology %d: %w", ontologyID, ErrCycleDetected)
	}

	if len(removals) == 0 && len(additions) == 0 {
		report.Unchanged = true
		e.logger.Info("hierarchy consistent, nothing to repair",
			"ontology_id", ontologyID, "version", base)
		return report, nil
	}

	out := make([]turtle.Triple, 0, len(triples)+len(additions))
	for _, t := range triples {
		if removals[t] {
			continue
		}
		out = append(out, t)
	}
	out = append(out, additions...)

	prefixes := turtle.DefaultPrefixes()
	if o.BaseURI != "" {
		prefixes[""] = o.BaseURI
	}
	content := turtle.Serialize(prefixes, out)

	msg := fmt.Sprintf("Hierarchy repair: %d self-references removed, %d classes reparented, %d intermediate categories added",
		report.SelfReferences, report.Reparented, report.Intermediates)
	next, err := e.store.UpdateContentFrom(ontologyID, base, content, msg)
	if err != nil {
		return nil, err
	}
	report.Version = next

	e.logger.Info("hierarchy repair committed",
		"ontology_id", ontologyID,
		"version", next,
		"self_references", report.SelfReferences,
		"reparented", report.Reparented,
		"intermediates", report.Intermediates,
	)
	return report, nil
}

func localName(uri string) string {
	if i := strings.LastIndexAny(uri, "#/"); i >= 0 && i+1 < len(uri) {
		return uri[i+1:]
	}
	return uri
}
