// Command storecheck runs an end-to-end smoke pass over the store: triple
// writes with the character mirror, temporal scoping, embedding search,
// the ontology version ledger, and a hierarchy repair run.
package main

import (
	"fmt"
	"log"

	"github.com/ethicslab/ontostore/internal/store"
	"github.com/ethicslab/ontostore/pkg/hierarchy"
)

const ns = "http://example.org/ethics#"

func main() {
	s, err := store.NewSQLiteStore(4)
	if err != nil {
		log.Fatalf("NewSQLiteStore failed: %v", err)
	}
	defer s.Close()

	fmt.Println("Checking triple store...")
	checkTriples(s)

	fmt.Println("\nChecking embeddings...")
	checkEmbeddings(s)

	fmt.Println("\nChecking ontology versions and hierarchy repair...")
	checkOntology(s)

	fmt.Println("\n✅ All checks passed!")
}

func checkTriples(s *store.SQLiteStore) {
	t := &store.Triple{
		Subject:    ns + "alex",
		Predicate:  ns + "hasSkill",
		ObjectURI:  ns + "StructuralDesign",
		EntityType: store.EntityTypeCharacter,
		EntityID:   "alex",
	}
	id, err := s.AddTriple(t)
	if err != nil {
		log.Fatalf("AddTriple failed: %v", err)
	}
	fmt.Println("  ✓ AddTriple works")

	again, err := s.AddTriple(&store.Triple{
		Subject:    ns + "alex",
		Predicate:  ns + "hasSkill",
		ObjectURI:  ns + "StructuralDesign",
		EntityType: store.EntityTypeCharacter,
		EntityID:   "alex",
	})
	if err != nil {
		log.Fatalf("duplicate AddTriple failed: %v", err)
	}
	if again != id {
		log.Fatalf("duplicate AddTriple expected id %d, got %d", id, again)
	}
	fmt.Println("  ✓ Duplicate writes dedup to one row")

	mirror, err := s.CharacterTriples("alex")
	if err != nil {
		log.Fatalf("CharacterTriples failed: %v", err)
	}
	if len(mirror) != 1 {
		log.Fatalf("CharacterTriples expected 1 row, got %d", len(mirror))
	}
	fmt.Println("  ✓ Character mirror in sync")

	end := int64(2000)
	if err := s.SetValidity(id, 1000, &end); err != nil {
		log.Fatalf("SetValidity failed: %v", err)
	}
	during, err := s.AsOf(1500, store.TripleFilter{Subject: ns + "alex"})
	if err != nil {
		log.Fatalf("AsOf failed: %v", err)
	}
	if len(during) != 1 {
		log.Fatalf("AsOf(1500) expected 1 triple, got %d", len(during))
	}
	after, err := s.AsOf(3000, store.TripleFilter{Subject: ns + "alex"})
	if err != nil {
		log.Fatalf("AsOf failed: %v", err)
	}
	if len(after) != 0 {
		log.Fatalf("AsOf(3000) expected 0 triples, got %d", len(after))
	}
	fmt.Println("  ✓ Temporal validity filtering works")

	if _, err := s.AddTriple(&store.Triple{
		Subject:   ns + "StructuralDesign",
		Predicate: ns + "partOf",
		ObjectURI: ns + "Engineering",
	}); err != nil {
		log.Fatalf("AddTriple failed: %v", err)
	}
	paths, err := s.FindPaths(ns+"alex", ns+"Engineering", 3)
	if err != nil {
		log.Fatalf("FindPaths failed: %v", err)
	}
	if len(paths) != 1 || paths[0].Depth() != 2 {
		log.Fatalf("FindPaths expected one 2-hop path, got %v", paths)
	}
	fmt.Println("  ✓ FindPaths works")
}

func checkEmbeddings(s *store.SQLiteStore) {
	id, err := s.AddTriple(&store.Triple{
		Subject:   ns + "case-17",
		Predicate: ns + "summary",
		ObjectURI: ns + "BridgeInspection",
	})
	if err != nil {
		log.Fatalf("AddTriple failed: %v", err)
	}

	if err := s.UpsertEmbedding(id, store.ComponentObject, []float32{1, 0, 0, 0}); err != nil {
		log.Fatalf("UpsertEmbedding failed: %v", err)
	}
	hits, err := s.NearestEmbeddings([]float32{1, 0, 0, 0}, store.ComponentObject, 5, "")
	if err != nil {
		log.Fatalf("NearestEmbeddings failed: %v", err)
	}
	if len(hits) != 1 || hits[0].TripleID != id {
		log.Fatalf("NearestEmbeddings expected triple %d, got %v", id, hits)
	}
	fmt.Println("  ✓ NearestEmbeddings works")
}

func checkOntology(s *store.SQLiteStore) {
	content := `@prefix rdfs: <http://www.w3.org/2000/01/rdf-schema#> .
@prefix owl: <http://www.w3.org/2002/07/owl#> .
@prefix : <` + ns + `> .

:SitePlan a owl:Class ;
    rdfs:label "Site Plan" ;
    rdfs:subClassOf :SitePlan .
`
	id, err := s.CreateOntology(&store.Ontology{
		DomainID:   "civil-engineering",
		Name:       "Civil Engineering",
		Content:    content,
		BaseURI:    ns,
		IsEditable: true,
	})
	if err != nil {
		log.Fatalf("CreateOntology failed: %v", err)
	}
	fmt.Println("  ✓ CreateOntology works")

	engine := hierarchy.New(s, hierarchy.DefaultRules(ns), ns+"ResourceType", nil)
	report, err := engine.Run(id)
	if err != nil {
		log.Fatalf("hierarchy run failed: %v", err)
	}
	if report.SelfReferences != 1 || report.Version != 2 {
		log.Fatalf("hierarchy run expected 1 self-reference fixed at version 2, got %+v", report)
	}
	fmt.Println("  ✓ Hierarchy repair commits a new version")

	second, err := engine.Run(id)
	if err != nil {
		log.Fatalf("second hierarchy run failed: %v", err)
	}
	if !second.Unchanged {
		log.Fatalf("second hierarchy run expected no changes, got %+v", second)
	}
	fmt.Println("  ✓ Hierarchy repair is idempotent")

	versions, err := s.ListVersions(id)
	if err != nil {
		log.Fatalf("ListVersions failed: %v", err)
	}
	if len(versions) != 2 {
		log.Fatalf("ListVersions expected 2 entries, got %d", len(versions))
	}
	fmt.Println("  ✓ Version ledger intact")
}
