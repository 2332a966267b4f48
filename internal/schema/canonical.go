package schema

import (
	"strconv"
	"strings"

	"geoetl/internal/table"
)

// Family selects which dataset family's vocabulary applies. The two
// families use separate geographic hierarchies (census tracts versus
// polling sections), so ranks are only comparable within one family.
type Family string

const (
	FamilyCensus   Family = "census"
	FamilyElection Family = "election"
)

// Census geographic ranks, finest first.
const (
	RankCensusTract = iota + 1
	RankNeighborhood
	RankSubdistrict
	RankDistrict
	RankCensusCity
	RankMicroRegion
	RankMesoRegion
	RankCensusUF
	RankRegion
)

// Election geographic ranks, finest first.
const (
	RankPollingSection = iota + 1
	RankPollingPlace
	RankPollingZone
	RankElectionCity
	RankElectionUF
)

// Canonical geographic column names.
const (
	ColCensusTract  = "[GEO]_ID_CENSUS_TRACT"
	ColNeighborhood = "[GEO]_ID_NEIGHBORHOOD"
	ColSubdistrict  = "[GEO]_ID_SUBDISTRICT"
	ColDistrict     = "[GEO]_ID_DISTRICT"
	ColCityID       = "[GEO]_ID_CITY"
	ColMicroRegion  = "[GEO]_ID_MICRO_REGION"
	ColMesoRegion   = "[GEO]_ID_MESO_REGION"
	ColUFID         = "[GEO]_ID_UF"
	ColRegionID     = "[GEO]_ID_REGION"

	ColUF      = "[GEO]_UF"
	ColCity    = "[GEO]_CITY"
	ColTSECity = "[GEO]_ID_TSE_CITY"
	ColZone    = "[GEO]_ID_POLLING_ZONE"
	ColSection = "[GEO]_ID_POLLING_SECTION"
	ColPlace   = "[GEO]_ID_POLLING_PLACE"
)

// Canonical election columns.
const (
	ColCandidacyPosition   = "[ELECTION]_ID_CANDIDACY_POSITION"
	ColElectorate          = "[ELECTION]_ELECTORATE"
	ColTurnout             = "[ELECTION]_TURNOUT"
	ColAbstentions         = "[ELECTION]_ABSTENTIONS"
	ColCandidateID         = "[ELECTION]_ID_CANDIDATE"
	ColVotes               = "[ELECTION]_VOTES"
	ColElectorateBiometria = "[ELECTION]_ELECTORATE_BIOMETRIA"
	ColBlank               = "[ELECTION]_BLANK"
	ColNull                = "[ELECTION]_NULL"
)

// CandidatePrefix is the pivot template for candidate vote columns.
const CandidatePrefix = "[ELECTION]_CANDIDATE_"

// Reserved candidate codes on the ballot.
const (
	CodeBlank = 95
	CodeNull  = 96
)

// Census total columns, one per normalization group.
const (
	ColPersonTotal         = "[CENSUS]_DOMICILIO02_V002"
	ColDomicileTotal       = "[CENSUS]_DOMICILIO01_V001"
	ColIncomePersonTotal   = "[CENSUS]_PESSOARENDA_V022"
	ColIncomeDomicileTotal = "[CENSUS]_DOMICILIORENDA_V002"

	// Population and domicile counts used by the income heuristic.
	ColPopulationCount = "[CENSUS]_DOMICILIO02_V001"
	ColDomicileCount   = "[CENSUS]_DOMICILIO01_V001"
)

// TotalCols lists the group totals the normalization engine divides by.
func TotalCols() []string {
	return []string{ColPersonTotal, ColDomicileTotal, ColIncomePersonTotal, ColIncomeDomicileTotal}
}

// SubsetBasic is the census table that carries the geographic
// hierarchy shared by all census files.
const SubsetBasic = "BASICO"

// DomicileSubsets are the census source tables whose measures count
// domiciles rather than persons.
var DomicileSubsets = map[string]bool{
	"DOMICILIO01": true,
	"ENTORNO01":   true,
	"ENTORNO02":   true,
}

// geoMeta maps a canonical geo column to its metadata per family.
var geoMeta = map[Family]map[string]table.Meta{
	FamilyCensus: {
		ColCensusTract:       {Tag: table.TagGeo, Role: table.RoleID, Rank: RankCensusTract},
		ColNeighborhood:      {Tag: table.TagGeo, Role: table.RoleID, Rank: RankNeighborhood},
		"[GEO]_NEIGHBORHOOD": {Tag: table.TagGeo, Role: table.RoleLabel, Rank: RankNeighborhood},
		ColSubdistrict:       {Tag: table.TagGeo, Role: table.RoleID, Rank: RankSubdistrict},
		"[GEO]_SUBDISTRICT":  {Tag: table.TagGeo, Role: table.RoleLabel, Rank: RankSubdistrict},
		ColDistrict:          {Tag: table.TagGeo, Role: table.RoleID, Rank: RankDistrict},
		"[GEO]_DISTRICT":     {Tag: table.TagGeo, Role: table.RoleLabel, Rank: RankDistrict},
		ColCityID:            {Tag: table.TagGeo, Role: table.RoleID, Rank: RankCensusCity},
		ColCity:              {Tag: table.TagGeo, Role: table.RoleLabel, Rank: RankCensusCity},
		ColMicroRegion:       {Tag: table.TagGeo, Role: table.RoleID, Rank: RankMicroRegion},
		"[GEO]_MICRO_REGION": {Tag: table.TagGeo, Role: table.RoleLabel, Rank: RankMicroRegion},
		ColMesoRegion:        {Tag: table.TagGeo, Role: table.RoleID, Rank: RankMesoRegion},
		"[GEO]_MESO_REGION":  {Tag: table.TagGeo, Role: table.RoleLabel, Rank: RankMesoRegion},
		ColUFID:              {Tag: table.TagGeo, Role: table.RoleID, Rank: RankCensusUF},
		ColUF:                {Tag: table.TagGeo, Role: table.RoleLabel, Rank: RankCensusUF},
		ColRegionID:          {Tag: table.TagGeo, Role: table.RoleID, Rank: RankRegion},
		"[GEO]_REGION":       {Tag: table.TagGeo, Role: table.RoleLabel, Rank: RankRegion},
	},
	FamilyElection: {
		ColSection: {Tag: table.TagGeo, Role: table.RoleID, Rank: RankPollingSection},
		ColPlace:   {Tag: table.TagGeo, Role: table.RoleID, Rank: RankPollingPlace},
		ColZone:    {Tag: table.TagGeo, Role: table.RoleID, Rank: RankPollingZone},
		ColTSECity: {Tag: table.TagGeo, Role: table.RoleID, Rank: RankElectionCity},
		ColCity:    {Tag: table.TagGeo, Role: table.RoleLabel, Rank: RankElectionCity},
		ColUF:      {Tag: table.TagGeo, Role: table.RoleLabel, Rank: RankElectionUF},
	},
}

// electionMeta covers the fixed election vocabulary, including the
// share columns the normalization engine appends.
var electionMeta = map[string]table.Meta{
	ColCandidacyPosition:   {Tag: table.TagElection, Role: table.RoleID},
	ColElectorate:          {Tag: table.TagElection, Role: table.RoleElectorate},
	ColTurnout:             {Tag: table.TagElection, Role: table.RoleTurnout},
	ColAbstentions:         {Tag: table.TagElection, Role: table.RoleAbstentions},
	ColCandidateID:         {Tag: table.TagElection, Role: table.RoleID},
	ColVotes:               {Tag: table.TagElection, Role: table.RoleMeasure},
	ColElectorateBiometria: {Tag: table.TagElection, Role: table.RoleMeasure},
	ColBlank:               {Tag: table.TagElection, Role: table.RoleBlankVotes},
	ColNull:                {Tag: table.TagElection, Role: table.RoleNullVotes},
}

// MetaFor resolves the metadata of a canonical column name within a
// family. Unknown names report ok == false.
func MetaFor(family Family, name string) (table.Meta, bool) {
	if m, ok := geoMeta[family][name]; ok {
		return m, true
	}
	switch family {
	case FamilyElection:
		if m, ok := electionMeta[name]; ok {
			return m, true
		}
		if strings.HasPrefix(name, CandidatePrefix) {
			if _, err := strconv.Atoi(strings.TrimPrefix(name, CandidatePrefix)); err == nil {
				return table.Meta{Tag: table.TagElection, Role: table.RoleCandidate}, true
			}
		}
	case FamilyCensus:
		if sub, ok := censusSubset(name); ok {
			role := table.RoleMeasure
			for _, tc := range TotalCols() {
				if name == tc {
					role = table.RoleTotal
				}
			}
			return table.Meta{Tag: table.TagCensus, Role: role, Subset: sub}, true
		}
	}
	return table.Meta{}, false
}

// censusSubset extracts the source-table tag from a canonical census
// measure name, e.g. "[CENSUS]_DOMICILIO01_V001" -> "DOMICILIO01".
func censusSubset(name string) (string, bool) {
	if !strings.HasPrefix(name, PrefixCensus) {
		return "", false
	}
	rest := strings.TrimPrefix(name, PrefixCensus)
	i := strings.LastIndex(rest, "_V")
	if i <= 0 {
		return "", false
	}
	if _, err := strconv.Atoi(rest[i+2:]); err != nil {
		return "", false
	}
	return rest[:i], true
}

// AttachCanonical restores column metadata from canonical names after an
// interim table is read back from disk. This is the single place where
// meaning is re-derived from a name; every stage after it works off Meta.
func AttachCanonical(t *table.Table, family Family) {
	for i := 0; i < t.NumCols(); i++ {
		c := t.ColAt(i)
		if m, ok := MetaFor(family, c.Name); ok {
			c.Meta = m
		}
	}
}
