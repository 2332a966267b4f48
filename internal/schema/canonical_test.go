package schema

import (
	"testing"

	"geoetl/internal/table"
)

/*
TestMetaFor verifies name-to-metadata resolution per family:
  - geo identifiers carry their rank within the family's hierarchy,
  - census measures get their source-table subset and the total role
    for the four division totals,
  - pivoted candidate columns resolve through the numeric template,
  - unknown names and cross-family lookups report ok=false.
*/
func TestMetaFor(t *testing.T) {
	m, ok := MetaFor(FamilyCensus, ColCensusTract)
	if !ok || m.Rank != RankCensusTract || m.Role != table.RoleID {
		t.Fatalf("tract meta=%+v ok=%v", m, ok)
	}

	m, ok = MetaFor(FamilyCensus, "[CENSUS]_ENTORNO01_V010")
	if !ok || m.Subset != "ENTORNO01" || m.Role != table.RoleMeasure {
		t.Fatalf("census measure meta=%+v ok=%v", m, ok)
	}
	m, ok = MetaFor(FamilyCensus, ColIncomeDomicileTotal)
	if !ok || m.Role != table.RoleTotal {
		t.Fatalf("total meta=%+v ok=%v", m, ok)
	}

	m, ok = MetaFor(FamilyElection, CandidatePrefix+"1234")
	if !ok || m.Role != table.RoleCandidate {
		t.Fatalf("candidate meta=%+v ok=%v", m, ok)
	}
	if _, ok = MetaFor(FamilyElection, CandidatePrefix+"90_(%)"); ok {
		t.Fatalf("share column resolved as candidate")
	}
	if _, ok = MetaFor(FamilyElection, ColCensusTract); ok {
		t.Fatalf("census tract resolved in election family")
	}
	if _, ok = MetaFor(FamilyCensus, "not_a_column"); ok {
		t.Fatalf("unknown name resolved")
	}
}

// Reading an interim file loses metadata; AttachCanonical restores it
// from the canonical names and leaves unknown columns untouched.
func TestAttachCanonical(t *testing.T) {
	in := mkTab(t,
		mkStr(ColUF, "SP"),
		mkNum(ColTurnout, 80),
		mkNum("mystery", 1),
	)
	AttachCanonical(in, FamilyElection)

	if m := in.Col(ColUF).Meta; m.Tag != table.TagGeo || m.Rank != RankElectionUF {
		t.Fatalf("uf meta=%+v", m)
	}
	if m := in.Col(ColTurnout).Meta; m.Role != table.RoleTurnout {
		t.Fatalf("turnout meta=%+v", m)
	}
	if m := in.Col("mystery").Meta; m.Tag != table.TagNone {
		t.Fatalf("unknown column acquired meta %+v", m)
	}
}
