package transform

import (
	"fmt"

	"geoetl/internal/table"
)

// DeriveShares appends percentage columns next to the absolute vote
// counts. Candidate, blank and null counts are expressed as a share of
// turnout; turnout and abstentions as a share of the electorate. Each
// share column is named after its source with a "_(%)" suffix. Division
// by a zero or missing denominator yields a missing share.
type DeriveShares struct{}

func (DeriveShares) Apply(t *table.Table) (*table.Table, error) {
	turnout := colByRole(t, table.RoleTurnout)
	electorate := colByRole(t, table.RoleElectorate)
	if turnout == nil || electorate == nil {
		return nil, fmt.Errorf("shares: turnout and electorate columns are required")
	}

	out := t.Clone()
	for i := 0; i < t.NumCols(); i++ {
		c := t.ColAt(i)
		var denom *table.Column
		switch c.Meta.Role {
		case table.RoleCandidate, table.RoleBlankVotes, table.RoleNullVotes:
			denom = turnout
		case table.RoleTurnout, table.RoleAbstentions:
			denom = electorate
		default:
			continue
		}
		if c.Kind != table.Float {
			return nil, fmt.Errorf("shares: column %q is not numeric", c.Name)
		}
		share := table.NewNum(c.Name+"_(%)", make([]float64, c.Len()))
		share.Meta = table.Meta{Tag: table.TagElection, Role: table.RoleMeasure}
		for r := range share.Num {
			share.Num[r] = 100 * divide(c.Num[r], denom.Num[r])
		}
		if err := out.Add(share); err != nil {
			return nil, fmt.Errorf("shares: %w", err)
		}
	}
	return out, nil
}

func colByRole(t *table.Table, role table.Role) *table.Column {
	for i := 0; i < t.NumCols(); i++ {
		if c := t.ColAt(i); c.Meta.Role == role && c.Kind == table.Float {
			return c
		}
	}
	return nil
}
