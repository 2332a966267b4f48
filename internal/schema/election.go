package schema

import (
	"fmt"
	"math"
	"strconv"

	"geoetl/internal/table"
	"geoetl/internal/transform"
)

// CandidacyPositions maps a configured candidacy name to the position
// code carried by the CD_CARGO_PERGUNTA column.
var CandidacyPositions = map[string]int{
	"president": 1,
	"governor":  3,
}

// ElectionOptions selects which slice of a results export survives
// normalization.
type ElectionOptions struct {
	// Position is the candidacy position code to keep.
	Position int
	// Candidates are the ballot numbers pivoted into per-candidate
	// columns. Blank and null codes are always appended.
	Candidates []int
}

// SectionKey is the composite key identifying one polling section, the
// finest unit a results export reports.
func SectionKey() []string {
	return []string{ColTSECity, ColZone, ColPlace, ColSection}
}

// ElectionMap is the rename map for raw election results exports. The
// biometric electorate count is absent from older exports and therefore
// optional.
func ElectionMap() Map {
	req := func(from, to string) Entry {
		m, _ := MetaFor(FamilyElection, to)
		return Entry{From: from, To: to, Meta: m, Required: true}
	}
	opt := func(from, to string) Entry {
		m, _ := MetaFor(FamilyElection, to)
		return Entry{From: from, To: to, Meta: m}
	}
	return Map{Entries: []Entry{
		req("SG_UF", ColUF),
		req("CD_MUNICIPIO", ColTSECity),
		req("NM_MUNICIPIO", ColCity),
		req("NR_ZONA", ColZone),
		req("NR_SECAO", ColSection),
		req("NR_LOCAL_VOTACAO", ColPlace),
		req("CD_CARGO_PERGUNTA", ColCandidacyPosition),
		req("QT_APTOS", ColElectorate),
		req("QT_COMPARECIMENTO", ColTurnout),
		req("QT_ABSTENCOES", ColAbstentions),
		req("NR_VOTAVEL", ColCandidateID),
		req("QT_VOTOS", ColVotes),
		opt("QT_ELEITORES_BIOMETRIA_NH", ColElectorateBiometria),
	}}
}

// NormalizeResults turns one raw results export into a wide section
// table: one row per polling section, one column per configured
// candidate plus the blank and null categories, vote counts summed
// nowhere and duplicated nowhere (first occurrence wins throughout).
// Rows for other candidacy positions and rows without a candidate code
// are discarded. Columns still holding a missing value at the end are
// dropped, so a regional export with a half-filled attribute loses that
// attribute rather than poisoning the merged dataset.
func NormalizeResults(t *table.Table, opts ElectionOptions) (*table.Table, error) {
	out, err := ElectionMap().Apply(t)
	if err != nil {
		return nil, err
	}
	table.InferKinds(out)

	pos := out.Col(ColCandidacyPosition)
	cand := out.Col(ColCandidateID)
	if pos.Kind != table.Float || cand.Kind != table.Float {
		return nil, fmt.Errorf("election: position and candidate columns must be numeric")
	}

	keep := make([]bool, out.NumRows())
	target := float64(opts.Position)
	for r := range keep {
		keep[r] = !pos.Missing(r) && pos.Num[r] == target && !cand.Missing(r)
	}
	out = out.Filter(keep)
	fillBiometria(out)

	votes, err := pivotVotes(out)
	if err != nil {
		return nil, err
	}

	out, err = transform.Dedup{Keys: SectionKey()}.Apply(out)
	if err != nil {
		return nil, err
	}
	if err := joinVotes(out, votes, opts.Candidates); err != nil {
		return nil, err
	}

	out.Drop(ColVotes, ColCandidacyPosition, ColCandidateID)
	dropMissingCols(out)
	return out, nil
}

// fillBiometria zeroes missing biometric counts, creating the column
// when the export predates it. Every other missing value is meaningful
// and kept.
func fillBiometria(t *table.Table) {
	bio := t.Col(ColElectorateBiometria)
	meta, _ := MetaFor(FamilyElection, ColElectorateBiometria)
	if bio == nil {
		zero := table.NewNum(ColElectorateBiometria, make([]float64, t.NumRows()))
		zero.Meta = meta
		t.Add(zero)
		return
	}
	if bio.Kind == table.Float {
		for r := range bio.Num {
			if math.IsNaN(bio.Num[r]) {
				bio.Num[r] = 0
			}
		}
		return
	}
	num := make([]float64, bio.Len())
	for r := range num {
		if v, ok := table.ParseNumber(bio.Str[r]); ok {
			num[r] = v
		}
	}
	t.Drop(ColElectorateBiometria)
	repl := table.NewNum(ColElectorateBiometria, num)
	repl.Meta = meta
	t.Add(repl)
}

// pivotVotes collects the vote count per section per candidate code
// from the long rows. The first row wins when an export repeats a
// section and candidate pair.
func pivotVotes(t *table.Table) (map[string]map[int]float64, error) {
	keyOf, err := t.KeyFunc(SectionKey())
	if err != nil {
		return nil, err
	}
	cand := t.Col(ColCandidateID)
	vote := t.Col(ColVotes)
	if vote == nil || vote.Kind != table.Float {
		return nil, fmt.Errorf("election: votes column must be numeric")
	}
	votes := make(map[string]map[int]float64)
	for r := 0; r < t.NumRows(); r++ {
		key := keyOf(r)
		code := int(cand.Num[r])
		m := votes[key]
		if m == nil {
			m = make(map[int]float64)
			votes[key] = m
		}
		if _, ok := m[code]; !ok {
			m[code] = vote.Num[r]
		}
	}
	return votes, nil
}

// joinVotes appends one column per configured candidate plus the blank
// and null categories, aligned to the deduplicated section rows. A
// section without votes for a code gets 0.
func joinVotes(t *table.Table, votes map[string]map[int]float64, candidates []int) error {
	keyOf, err := t.KeyFunc(SectionKey())
	if err != nil {
		return err
	}
	codes := make([]int, 0, len(candidates)+2)
	seen := make(map[int]bool)
	for _, code := range append(append([]int(nil), candidates...), CodeNull, CodeBlank) {
		if !seen[code] {
			seen[code] = true
			codes = append(codes, code)
		}
	}
	for _, code := range codes {
		col := table.NewNum(candidateColName(code), make([]float64, t.NumRows()))
		col.Meta = candidateColMeta(code)
		for r := range col.Num {
			if v, ok := votes[keyOf(r)][code]; ok {
				col.Num[r] = v
			}
		}
		if err := t.Add(col); err != nil {
			return fmt.Errorf("election: %w", err)
		}
	}
	return nil
}

func candidateColName(code int) string {
	switch code {
	case CodeBlank:
		return ColBlank
	case CodeNull:
		return ColNull
	}
	return CandidatePrefix + strconv.Itoa(code)
}

func candidateColMeta(code int) table.Meta {
	switch code {
	case CodeBlank:
		return table.Meta{Tag: table.TagElection, Role: table.RoleBlankVotes}
	case CodeNull:
		return table.Meta{Tag: table.TagElection, Role: table.RoleNullVotes}
	}
	return table.Meta{Tag: table.TagElection, Role: table.RoleCandidate}
}

func dropMissingCols(t *table.Table) {
	var drop []string
	for i := 0; i < t.NumCols(); i++ {
		c := t.ColAt(i)
		for r := 0; r < c.Len(); r++ {
			if c.Missing(r) {
				drop = append(drop, c.Name)
				break
			}
		}
	}
	t.Drop(drop...)
}
