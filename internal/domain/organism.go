package domain

// IDFormat classifies the lexical format of a biological identifier.
type IDFormat string

// Recognized identifier formats.
const (
	FormatEnsembl     IDFormat = "ensembl"
	FormatUniProt     IDFormat = "uniprot"
	FormatNCBIGene    IDFormat = "ncbi-geneid"
	FormatNCBIProtein IDFormat = "ncbi-proteinid"
)

// Organism maps a canonical organism name to the identifier each database
// uses for it (e.g. KEGG "hsa" for human, NCBI taxon "9606").
// A missing entry for a database is a valid state: enrichment skips that
// database for the organism instead of failing.
type Organism struct {
	Name string              `json:"name"`
	IDs  map[Database]string `json:"ids"`
}

// ID returns the organism identifier for a database and whether one exists.
func (o Organism) ID(db Database) (string, bool) {
	id, ok := o.IDs[db]
	return id, ok
}
