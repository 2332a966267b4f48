package pipeline

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"geoetl/internal/schema"
)

// electionFixtureTree writes one raw results export (three sections in
// one city, two polling places) plus the geocoding lookups, and returns
// the tree rooted in a temp dir.
func electionFixtureTree(t *testing.T) Tree {
	t.Helper()
	tree := Tree{Root: t.TempDir(), Region: "brazil", Org: "tse", Year: "2018"}

	header := "SG_UF;CD_MUNICIPIO;NM_MUNICIPIO;NR_ZONA;NR_SECAO;NR_LOCAL_VOTACAO;" +
		"CD_CARGO_PERGUNTA;QT_APTOS;QT_COMPARECIMENTO;QT_ABSTENCOES;" +
		"QT_ELEITORES_BIOMETRIA_NH;NR_VOTAVEL;QT_VOTOS\n"
	rows := "" +
		"SP;111;ALFA;1;1;10;1;100;80;20;70;90;50\n" +
		"SP;111;ALFA;1;1;10;1;100;80;20;70;91;20\n" +
		"SP;111;ALFA;1;1;10;1;100;80;20;70;95;5\n" +
		"SP;111;ALFA;1;1;10;1;100;80;20;70;96;5\n" +
		"SP;111;ALFA;1;2;10;1;50;40;10;30;90;30\n" +
		"SP;111;ALFA;1;2;10;1;50;40;10;30;91;10\n" +
		"SP;111;ALFA;1;3;20;1;60;30;30;20;90;25\n" +
		"SP;111;ALFA;1;3;20;1;60;30;30;20;95;5\n" +
		// A governor row on the same section must not leak in.
		"SP;111;ALFA;1;1;10;3;100;80;20;70;90;999\n"
	writeRaw(t, tree.StageDir(StageRaw, "elections"), "results_SP.csv", header+rows)

	writeRaw(t, tree.LevelDir(StageProcessed, "locations", "polling place"), "locations_gmaps.csv",
		"[GEO]_UF,[GEO]_CITY,[GEO]_ID_POLLING_ZONE,[GEO]_ID_POLLING_PLACE,[GEO]_LATITUDE,[GEO]_LONGITUDE\n"+
			"SP,ALFA,1,10,-23.5,-46.6\n"+
			"SP,ALFA,1,20,-23.6,-46.7\n")
	writeRaw(t, tree.LevelDir(StageProcessed, "locations", "city"), "locations_gmaps.csv",
		"[GEO]_UF,[GEO]_CITY,[GEO]_LATITUDE,[GEO]_LONGITUDE\n"+
			"SP,ALFA,-23.55,-46.64\n")
	return tree
}

func electionParams() ElectionParams {
	return ElectionParams{
		Dataset:      "elections",
		Candidacy:    "president",
		Candidates:   []int{90, 91},
		Levels:       []string{"polling place", "city"},
		GeocodingAPI: "gmaps",
		Workers:      2,
		Logger:       quietLogger(),
	}
}

/*
TestElectionStages drives both election stages over a real folder tree
at the polling place level:

  - interim: the export's long candidate rows pivot into candidate
    columns, the governor row is filtered out, and sections collapse
    into polling places with summed counts
  - processed: shares derive from the aggregated counts (never from
    pre-divided values), the geocoding lookup decorates the rows, and
    the section id, finer than a polling place, is gone
*/
func TestElectionStages(t *testing.T) {
	tree := electionFixtureTree(t)
	p := electionParams()

	if err := ElectionInterim(context.Background(), tree, p); err != nil {
		t.Fatalf("ElectionInterim: %v", err)
	}

	interim, err := ReadStage(
		filepath.Join(tree.LevelDir(StageInterim, "elections", "polling place"), "president", "results_SP.csv"),
		schema.FamilyElection)
	if err != nil {
		t.Fatalf("ReadStage interim: %v", err)
	}
	if interim.NumRows() != 2 {
		t.Fatalf("interim rows = %d; want 2 polling places", interim.NumRows())
	}
	if got := interim.Col(schema.CandidatePrefix + "90"); !sameFloats(got.Num, []float64{80, 25}) {
		t.Fatalf("candidate 90 = %v; want [80 25]", got.Num)
	}
	if got := interim.Col(schema.ColElectorate); !sameFloats(got.Num, []float64{150, 60}) {
		t.Fatalf("electorate = %v; want [150 60]", got.Num)
	}
	if got := interim.Col(schema.ColElectorateBiometria); !sameFloats(got.Num, []float64{100, 20}) {
		t.Fatalf("biometria = %v; want [100 20]", got.Num)
	}

	if err := ElectionProcessed(context.Background(), tree, p, "polling place"); err != nil {
		t.Fatalf("ElectionProcessed: %v", err)
	}

	out, err := ReadStage(
		filepath.Join(tree.LevelDir(StageProcessed, "elections", "polling place"), "president", "data_gmaps.csv"),
		schema.FamilyElection)
	if err != nil {
		t.Fatalf("ReadStage processed: %v", err)
	}
	if out.Has(schema.ColSection) {
		t.Fatalf("section id survived polling place aggregation: %v", out.Names())
	}
	if got := out.Col(schema.CandidatePrefix + "90"); !sameFloats(got.Num, []float64{80, 25}) {
		t.Fatalf("candidate 90 counts = %v; want [80 25]", got.Num)
	}
	if got := out.Col(schema.CandidatePrefix + "90_(%)"); !sameFloats(got.Num, []float64{100 * 80.0 / 120.0, 100 * 25.0 / 30.0}) {
		t.Fatalf("candidate 90 share = %v; want [66.67 83.33]", got.Num)
	}
	if got := out.Col(schema.ColTurnout + "_(%)"); !sameFloats(got.Num, []float64{80, 50}) {
		t.Fatalf("turnout share = %v; want [80 50]", got.Num)
	}
	if got := out.Col("[GEO]_LATITUDE"); got == nil || !sameFloats(got.Num, []float64{-23.5, -23.6}) {
		t.Fatalf("latitude = %+v; want [-23.5 -23.6]", got)
	}
}

/*
TestElectionProcessedCityLevel re-runs the processed stage at the city
level and checks the geography invariant: zone, place and section are
all finer than a city and must disappear, while the electoral court's
own city id stays.
*/
func TestElectionProcessedCityLevel(t *testing.T) {
	tree := electionFixtureTree(t)
	p := electionParams()

	if err := ElectionInterim(context.Background(), tree, p); err != nil {
		t.Fatalf("ElectionInterim: %v", err)
	}
	if err := ElectionProcessed(context.Background(), tree, p, "city"); err != nil {
		t.Fatalf("ElectionProcessed: %v", err)
	}

	out, err := ReadStage(
		filepath.Join(tree.LevelDir(StageProcessed, "elections", "city"), "president", "data_gmaps.csv"),
		schema.FamilyElection)
	if err != nil {
		t.Fatalf("ReadStage: %v", err)
	}
	if out.NumRows() != 1 {
		t.Fatalf("rows = %d; want 1 city", out.NumRows())
	}
	for _, name := range []string{schema.ColZone, schema.ColPlace, schema.ColSection} {
		if out.Has(name) {
			t.Fatalf("column %s survived city aggregation", name)
		}
	}
	if got := out.Col(schema.ColTSECity); got == nil || !sameFloats(got.Num, []float64{111}) {
		t.Fatalf("tse city = %+v; want [111]", got)
	}
	if got := out.Col(schema.CandidatePrefix + "90_(%)"); !sameFloats(got.Num, []float64{100 * 105.0 / 150.0}) {
		t.Fatalf("candidate 90 share = %v; want [70]", got.Num)
	}
	if got := out.Col(schema.ColTurnout + "_(%)"); !sameFloats(got.Num, []float64{100 * 150.0 / 210.0}) {
		t.Fatalf("turnout share = %v; want [71.43]", got.Num)
	}
	if got := out.Col("[GEO]_LATITUDE"); got == nil || !sameFloats(got.Num, []float64{-23.55}) {
		t.Fatalf("latitude = %+v; want [-23.55]", got)
	}
}

func TestElectionInterimUnknownCandidacy(t *testing.T) {
	tree := electionFixtureTree(t)
	p := electionParams()
	p.Candidacy = "mayor"

	err := ElectionInterim(context.Background(), tree, p)
	if err == nil || !strings.Contains(err.Error(), "unknown candidacy") {
		t.Fatalf("error = %v; want unknown candidacy", err)
	}
}

func TestElectionProcessedMissingLookup(t *testing.T) {
	tree := electionFixtureTree(t)
	p := electionParams()

	if err := ElectionInterim(context.Background(), tree, p); err != nil {
		t.Fatalf("ElectionInterim: %v", err)
	}
	p.GeocodingAPI = "osm"
	err := ElectionProcessed(context.Background(), tree, p, "city")
	if err == nil || !strings.Contains(err.Error(), "locations_osm.csv") {
		t.Fatalf("error = %v; want missing locations_osm.csv path", err)
	}
}
