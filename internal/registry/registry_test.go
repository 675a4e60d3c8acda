package registry

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/openbioscience/finch/internal/domain"
)

func TestRegistry(t *testing.T) {
	r := New()

	t.Run("BuiltinEndpoints", func(t *testing.T) {
		url, err := r.BaseURL(domain.DatabaseKEGG)
		if err != nil {
			t.Fatalf("BaseURL(kegg) error: %v", err)
		}
		if url != "https://rest.kegg.jp" {
			t.Errorf("kegg base URL = %q", url)
		}
		if len(r.Databases()) != 10 {
			t.Errorf("expected 10 builtin databases, got %d", len(r.Databases()))
		}
	})

	t.Run("UnknownDatabase", func(t *testing.T) {
		_, err := r.BaseURL("wormbase")
		if err == nil {
			t.Fatal("expected error for unknown database")
		}
		var ce *domain.ConfigError
		if !errors.As(err, &ce) {
			t.Errorf("expected ConfigError, got %T", err)
		}
	})

	t.Run("OrganismLookup", func(t *testing.T) {
		org, ok := r.Organism("human")
		if !ok {
			t.Fatal("human organism missing")
		}
		if id, _ := org.ID(domain.DatabaseKEGG); id != "hsa" {
			t.Errorf("human kegg id = %q, want hsa", id)
		}
		if _, ok := r.Organism("HUMAN"); !ok {
			t.Error("organism lookup should be case-insensitive")
		}
	})

	t.Run("OrganismWithoutMapping", func(t *testing.T) {
		org, _ := r.Organism("yeast")
		if _, ok := org.ID(domain.DatabaseInterPro); ok {
			t.Error("interpro should have no organism mapping")
		}
	})

	t.Run("CredentialParams", func(t *testing.T) {
		if p := r.CredentialParam(domain.DatabaseBioGRID); p != "accesskey" {
			t.Errorf("biogrid credential param = %q", p)
		}
		if p := r.CredentialParam(domain.DatabaseKEGG); p != "api_key" {
			t.Errorf("default credential param = %q", p)
		}
	})

	t.Run("MinimumOrganisms", func(t *testing.T) {
		for _, name := range []string{"human", "mouse", "rat", "yeast", "ecoli"} {
			if _, ok := r.Organism(name); !ok {
				t.Errorf("builtin organism %q missing", name)
			}
		}
	})
}

func TestRegistryOverlay(t *testing.T) {
	writeOverlay := func(t *testing.T, content string) string {
		t.Helper()
		path := filepath.Join(t.TempDir(), "registry.yaml")
		if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
			t.Fatalf("write overlay: %v", err)
		}
		return path
	}

	t.Run("AddAndReplace", func(t *testing.T) {
		path := writeOverlay(t, `
endpoints:
  kegg: http://localhost:9999
  wikipathways: https://webservice.wikipathways.org
organisms:
  zebrafish:
    kegg: dre
    ncbi: "7955"
  human:
    wikipathways: "Danio rerio"
credentialParams:
  wikipathways: key
`)
		r, err := Load(path)
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if url, _ := r.BaseURL(domain.DatabaseKEGG); url != "http://localhost:9999" {
			t.Errorf("overlay should replace kegg URL, got %q", url)
		}
		if !r.Has("wikipathways") {
			t.Error("overlay-added database missing")
		}
		org, ok := r.Organism("zebrafish")
		if !ok {
			t.Fatal("overlay-added organism missing")
		}
		if id, _ := org.ID(domain.DatabaseKEGG); id != "dre" {
			t.Errorf("zebrafish kegg id = %q", id)
		}
		human, _ := r.Organism("human")
		if id, _ := human.ID("wikipathways"); id != "Danio rerio" {
			t.Errorf("human overlay mapping = %q", id)
		}
		if id, _ := human.ID(domain.DatabaseKEGG); id != "hsa" {
			t.Error("overlay must not clobber existing organism mappings")
		}
		if p := r.CredentialParam("wikipathways"); p != "key" {
			t.Errorf("overlay credential param = %q", p)
		}
	})

	t.Run("EmptyURLRejected", func(t *testing.T) {
		path := writeOverlay(t, "endpoints:\n  kegg: \"\"\n")
		if _, err := Load(path); err == nil {
			t.Fatal("expected error for empty base URL")
		}
	})

	t.Run("UnknownOrganismDatabaseRejected", func(t *testing.T) {
		path := writeOverlay(t, "organisms:\n  human:\n    wormbase: wb\n")
		if _, err := Load(path); err == nil {
			t.Fatal("expected error for organism referencing unknown database")
		}
	})

	t.Run("EmptyPathLoadsBuiltins", func(t *testing.T) {
		r, err := Load("")
		if err != nil {
			t.Fatalf("Load(\"\"): %v", err)
		}
		if !r.Has(domain.DatabaseReactome) {
			t.Error("builtins missing")
		}
	})

	t.Run("MissingFile", func(t *testing.T) {
		if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
			t.Fatal("expected error for missing overlay file")
		}
	})
}
