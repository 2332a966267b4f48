package pipeline

import "geoetl/internal/schema"

// Level is one tier of a family's geographic hierarchy: the key columns
// that identify a unit at that tier and the rank used to recognize finer
// columns. Ranks are comparable only within a family.
type Level struct {
	Name string
	Rank int
	Keys []string
}

// censusLevels maps each census tier to its single identifier column,
// finest first.
var censusLevels = []Level{
	{"census tract", schema.RankCensusTract, []string{schema.ColCensusTract}},
	{"neighborhood", schema.RankNeighborhood, []string{schema.ColNeighborhood}},
	{"subdistrict", schema.RankSubdistrict, []string{schema.ColSubdistrict}},
	{"district", schema.RankDistrict, []string{schema.ColDistrict}},
	{"city", schema.RankCensusCity, []string{schema.ColCityID}},
	{"micro region", schema.RankMicroRegion, []string{schema.ColMicroRegion}},
	{"meso region", schema.RankMesoRegion, []string{schema.ColMesoRegion}},
	{"uf", schema.RankCensusUF, []string{schema.ColUFID}},
}

// electionLevels uses composite keys: result exports identify places by
// state and city name plus the zone and place numbers, which are only
// unique within a city.
var electionLevels = []Level{
	{"polling place", schema.RankPollingPlace, []string{
		schema.ColUF, schema.ColCity, schema.ColZone, schema.ColPlace,
	}},
	{"city", schema.RankElectionCity, []string{schema.ColUF, schema.ColCity}},
}

// CensusLevel resolves a census aggregation level by name.
func CensusLevel(name string) (Level, error) {
	return findLevel(censusLevels, "census", name)
}

// ElectionLevel resolves an election aggregation level by name.
func ElectionLevel(name string) (Level, error) {
	return findLevel(electionLevels, "election", name)
}

func findLevel(levels []Level, family, name string) (Level, error) {
	known := make([]string, len(levels))
	for i, l := range levels {
		if l.Name == name {
			return l, nil
		}
		known[i] = l.Name
	}
	return Level{}, &UnknownAggregationLevelError{Family: family, Level: name, Known: known}
}
