package registry

import (
	"github.com/openbioscience/finch/internal/domain"
)

// builtinOrganisms maps canonical organism names to per-database organism
// identifiers: KEGG organism codes, NCBI taxonomy IDs, Ensembl species
// names. A database absent from an organism's map is a valid state and
// makes enrichment skip that database for the organism; InterPro and PDB
// carry no organism scoping at all.
var builtinOrganisms = map[string]map[domain.Database]string{
	"human": {
		domain.DatabaseKEGG:     "hsa",
		domain.DatabaseReactome: "9606",
		domain.DatabaseStringDB: "9606",
		domain.DatabaseUniProt:  "9606",
		domain.DatabaseBioGRID:  "9606",
		domain.DatabaseEnsembl:  "homo_sapiens",
		domain.DatabaseNCBI:     "9606",
		domain.DatabaseIntAct:   "9606",
	},
	"mouse": {
		domain.DatabaseKEGG:     "mmu",
		domain.DatabaseReactome: "10090",
		domain.DatabaseStringDB: "10090",
		domain.DatabaseUniProt:  "10090",
		domain.DatabaseBioGRID:  "10090",
		domain.DatabaseEnsembl:  "mus_musculus",
		domain.DatabaseNCBI:     "10090",
		domain.DatabaseIntAct:   "10090",
	},
	"rat": {
		domain.DatabaseKEGG:     "rno",
		domain.DatabaseReactome: "10116",
		domain.DatabaseStringDB: "10116",
		domain.DatabaseUniProt:  "10116",
		domain.DatabaseBioGRID:  "10116",
		domain.DatabaseEnsembl:  "rattus_norvegicus",
		domain.DatabaseNCBI:     "10116",
		domain.DatabaseIntAct:   "10116",
	},
	"yeast": {
		domain.DatabaseKEGG:     "sce",
		domain.DatabaseReactome: "4932",
		domain.DatabaseStringDB: "4932",
		domain.DatabaseUniProt:  "559292",
		domain.DatabaseBioGRID:  "559292",
		domain.DatabaseEnsembl:  "saccharomyces_cerevisiae",
		domain.DatabaseNCBI:     "4932",
		domain.DatabaseIntAct:   "4932",
	},
	"ecoli": {
		domain.DatabaseKEGG:     "eco",
		domain.DatabaseReactome: "83333",
		domain.DatabaseStringDB: "511145",
		domain.DatabaseUniProt:  "83333",
		domain.DatabaseBioGRID:  "511145",
		domain.DatabaseEnsembl:  "escherichia_coli_str_k_12_substr_mg1655_gca_000005845",
		domain.DatabaseNCBI:     "562",
		domain.DatabaseIntAct:   "83333",
	},
}
