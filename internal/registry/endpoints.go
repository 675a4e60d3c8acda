package registry

import (
	"github.com/openbioscience/finch/internal/domain"
)

// builtinEndpoints maps every supported database to its public REST base
// URL. Paths and parameter names vary per database; callers own those.
var builtinEndpoints = map[domain.Database]string{
	domain.DatabaseKEGG:     "https://rest.kegg.jp",
	domain.DatabaseReactome: "https://reactome.org/ContentService",
	domain.DatabaseStringDB: "https://string-db.org/api",
	domain.DatabaseUniProt:  "https://rest.uniprot.org",
	domain.DatabaseBioGRID:  "https://webservice.thebiogrid.org",
	domain.DatabaseEnsembl:  "https://rest.ensembl.org",
	domain.DatabaseNCBI:     "https://eutils.ncbi.nlm.nih.gov/entrez/eutils",
	domain.DatabaseIntAct:   "https://www.ebi.ac.uk/intact/ws",
	domain.DatabaseInterPro: "https://www.ebi.ac.uk/interpro/api",
	domain.DatabasePDB:      "https://data.rcsb.org/rest/v1",
}

// builtinCredParams names the request parameter carrying the API key for
// databases that authenticate by query parameter.
var builtinCredParams = map[domain.Database]string{
	domain.DatabaseBioGRID: "accesskey",
	domain.DatabaseNCBI:    "api_key",
}
