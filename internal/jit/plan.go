package jit

import (
	"fmt"

	"github.com/roach88/wodrun/internal/ir"
)

// PlanEntry describes how one statement would compile.
type PlanEntry struct {
	StatementID int64  `json:"statement_id" yaml:"statement_id"`
	ParentID    int64  `json:"parent_id,omitempty" yaml:"parent_id,omitempty"`
	Label       string `json:"label" yaml:"label"`
	Strategy    string `json:"strategy" yaml:"strategy"`
	Fingerprint string `json:"fingerprint" yaml:"fingerprint"`
}

// Plan reports the strategy selected for every statement of script, in
// source order, without building any blocks. Unmatched statements get
// Strategy "".
func (c *Compiler) Plan(script *ir.Script) ([]PlanEntry, error) {
	stmts := script.Statements()
	out := make([]PlanEntry, 0, len(stmts))
	for i := range stmts {
		stmt := &stmts[i]
		fp, err := ir.Fingerprint(stmt)
		if err != nil {
			return nil, fmt.Errorf("plan statement %d: %w", stmt.ID, err)
		}
		entry := PlanEntry{
			StatementID: stmt.ID,
			ParentID:    stmt.ParentID,
			Label:       ir.Label(stmt),
			Fingerprint: fp,
		}
		if s, ok := c.Select(stmt); ok {
			entry.Strategy = s.Name()
		}
		out = append(out, entry)
	}
	return out, nil
}
