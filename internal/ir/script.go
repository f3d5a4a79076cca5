package ir

import (
	"errors"
	"fmt"
)

// ErrUnknownStatement is returned when a statement id cannot be resolved.
var ErrUnknownStatement = errors.New("unknown statement")

// Script is an ordered, immutable collection of statements.
type Script struct {
	statements []Statement
	index      map[int64]int
}

// NewScript builds a script and validates its structure.
func NewScript(statements []Statement) (*Script, error) {
	s := &Script{
		statements: make([]Statement, len(statements)),
		index:      make(map[int64]int, len(statements)),
	}
	copy(s.statements, statements)
	for i, stmt := range s.statements {
		if stmt.ID == 0 {
			return nil, fmt.Errorf("statement at index %d: id 0 is reserved for the root", i)
		}
		if _, dup := s.index[stmt.ID]; dup {
			return nil, fmt.Errorf("duplicate statement id %d", stmt.ID)
		}
		s.index[stmt.ID] = i
	}
	if err := s.validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// MustScript is NewScript that panics on error. For tests and fixtures.
func MustScript(statements ...Statement) *Script {
	s, err := NewScript(statements)
	if err != nil {
		panic(err)
	}
	return s
}

// validate checks parent links, child references and acyclicity.
func (s *Script) validate() error {
	for _, stmt := range s.statements {
		if stmt.HasParent() {
			if _, ok := s.index[stmt.ParentID]; !ok {
				return fmt.Errorf("statement %d: parent %d: %w", stmt.ID, stmt.ParentID, ErrUnknownStatement)
			}
		}
		for _, group := range stmt.Children {
			if len(group) == 0 {
				return fmt.Errorf("statement %d: empty child group", stmt.ID)
			}
			for _, id := range group {
				child, ok := s.Get(id)
				if !ok {
					return fmt.Errorf("statement %d: child %d: %w", stmt.ID, id, ErrUnknownStatement)
				}
				if child.ParentID != stmt.ID {
					return fmt.Errorf("statement %d: child %d declares parent %d", stmt.ID, id, child.ParentID)
				}
			}
		}
	}
	// Walk parent chains; any chain longer than the script is a cycle.
	for i := range s.statements {
		steps := 0
		for cur := &s.statements[i]; cur != nil && cur.HasParent(); cur, _ = s.Get(cur.ParentID) {
			steps++
			if steps > len(s.statements) {
				return fmt.Errorf("statement %d: parent chain forms a cycle", s.statements[i].ID)
			}
		}
	}
	return nil
}

// Len returns the number of statements.
func (s *Script) Len() int {
	return len(s.statements)
}

// Statements returns a copy of the statements in source order.
func (s *Script) Statements() []Statement {
	out := make([]Statement, len(s.statements))
	copy(out, s.statements)
	return out
}

// Get resolves a statement by id.
func (s *Script) Get(id int64) (*Statement, bool) {
	i, ok := s.index[id]
	if !ok {
		return nil, false
	}
	return &s.statements[i], true
}

// Roots returns the top-level statements in source order.
func (s *Script) Roots() []*Statement {
	var out []*Statement
	for i := range s.statements {
		if !s.statements[i].HasParent() {
			out = append(out, &s.statements[i])
		}
	}
	return out
}

// RootGroups returns the top-level statements as single-member groups.
func (s *Script) RootGroups() [][]int64 {
	roots := s.Roots()
	groups := make([][]int64, len(roots))
	for i, r := range roots {
		groups[i] = []int64{r.ID}
	}
	return groups
}

// Resolve maps a group of ids to statements.
func (s *Script) Resolve(group []int64) ([]*Statement, error) {
	out := make([]*Statement, 0, len(group))
	for _, id := range group {
		stmt, ok := s.Get(id)
		if !ok {
			return nil, fmt.Errorf("statement %d: %w", id, ErrUnknownStatement)
		}
		out = append(out, stmt)
	}
	return out, nil
}
