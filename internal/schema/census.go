package schema

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"geoetl/internal/table"
)

// varColumn matches the measure headers of the census extracts (V001,
// V002, ...).
var varColumn = regexp.MustCompile(`^V\d+$`)

// SourceTag derives the census source-table tag from a raw filename:
// "Domicilio01_SP.csv" -> "DOMICILIO01", "Básico_MG2.csv" -> "BASICO".
// Accents are folded because a few state archives ship accented names.
func SourceTag(filename string) string {
	base := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	if i := strings.Index(base, "_"); i > 0 {
		base = base[:i]
	}
	fold := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	if out, _, err := transform.String(fold, base); err == nil {
		base = out
	}
	return strings.ToUpper(strings.TrimSpace(base))
}

// censusGeoEntries returns the geo rename entries shared by all census
// tables. Only the tract id is required; the hierarchy columns appear in
// the BASICO table alone and are skipped elsewhere.
func censusGeoEntries() []Entry {
	meta := geoMeta[FamilyCensus]
	raw := []struct{ from, to string }{
		{"Cod_setor", ColCensusTract},
		{"Cod_Grandes Regiões", ColRegionID},
		{"Nome_Grande_Regiao", "[GEO]_REGION"},
		{"Cod_UF", ColUFID},
		{"Nome_da_UF", ColUF},
		{"Cod_meso", ColMesoRegion},
		{"Nome_da_meso", "[GEO]_MESO_REGION"},
		{"Cod_micro", ColMicroRegion},
		{"Nome_da_micro", "[GEO]_MICRO_REGION"},
		{"Cod_municipio", ColCityID},
		{"Nome_do_municipio", ColCity},
		{"Cod_distrito", ColDistrict},
		{"Nome_do_distrito", "[GEO]_DISTRICT"},
		{"Cod_subdistrito", ColSubdistrict},
		{"Nome_do_subdistrito", "[GEO]_SUBDISTRICT"},
		{"Cod_bairro", ColNeighborhood},
		{"Nome_do_bairro", "[GEO]_NEIGHBORHOOD"},
	}
	out := make([]Entry, 0, len(raw))
	for _, r := range raw {
		out = append(out, Entry{
			From:     r.from,
			To:       r.to,
			Meta:     meta[r.to],
			Required: r.to == ColCensusTract,
		})
	}
	return out
}

// CensusMap builds the rename map for one census source table. headers
// are the raw headers actually present; every V-column becomes
// [CENSUS]_<tag>_Vnnn. Anything else (sector situation codes, metro
// region columns) is intentionally unmapped and therefore dropped.
func CensusMap(tag string, headers []string) Map {
	entries := censusGeoEntries()
	totals := make(map[string]bool, 4)
	for _, tc := range TotalCols() {
		totals[tc] = true
	}
	for _, h := range headers {
		if !varColumn.MatchString(h) {
			continue
		}
		to := fmt.Sprintf("%s%s_%s", PrefixCensus, tag, h)
		role := table.RoleMeasure
		if totals[to] {
			role = table.RoleTotal
		}
		entries = append(entries, Entry{
			From: h,
			To:   to,
			Meta: table.Meta{Tag: table.TagCensus, Role: role, Subset: tag},
		})
	}
	return Map{Entries: entries}
}

// NormalizeCensus renames one raw census table into canonical form,
// deriving the source tag from its filename.
func NormalizeCensus(t *table.Table, filename string) (*table.Table, error) {
	tag := SourceTag(filename)
	if tag == "" {
		return nil, fmt.Errorf("cannot derive census source tag from %q", filename)
	}
	out, err := CensusMap(tag, t.Names()).Apply(t)
	if err != nil {
		var sm *SchemaMismatchError
		if errors.As(err, &sm) {
			sm.File = filename
		}
		return nil, err
	}
	return out, nil
}
