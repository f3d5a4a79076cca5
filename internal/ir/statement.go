package ir

// FragmentKind tags the type of a fragment value.
type FragmentKind string

const (
	// KindTimer carries a duration in milliseconds (Int). Zero means count up.
	KindTimer FragmentKind = "timer"
	// KindRep carries a repetition count (Int).
	KindRep FragmentKind = "rep"
	// KindEffort carries the exercise name (String).
	KindEffort FragmentKind = "effort"
	// KindDistance carries an Object {amount: Int, unit: String}.
	KindDistance FragmentKind = "distance"
	// KindResistance carries an Object {amount: Int, unit: String}.
	KindResistance FragmentKind = "resistance"
	// KindRounds carries a round count (Int) or a rep scheme (Array of Int).
	KindRounds FragmentKind = "rounds"
	// KindAction carries a workout modifier such as "AMRAP" or "EMOM" (String).
	KindAction FragmentKind = "action"
	// KindIncrement carries +1 / -1 (Int) marking count direction.
	KindIncrement FragmentKind = "increment"
	// KindLap carries the lap/grouping operator (String): "+", "-" or "round".
	KindLap FragmentKind = "lap"
	// KindText carries free text (String).
	KindText FragmentKind = "text"
)

// KnownKinds lists every fragment kind the runtime understands.
var KnownKinds = map[FragmentKind]bool{
	KindTimer:      true,
	KindRep:        true,
	KindEffort:     true,
	KindDistance:   true,
	KindResistance: true,
	KindRounds:     true,
	KindAction:     true,
	KindIncrement:  true,
	KindLap:        true,
	KindText:       true,
}

// SourcePos locates a statement or fragment in the source script.
type SourcePos struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

// Fragment is one typed piece of a statement.
type Fragment struct {
	Kind  FragmentKind `json:"kind"`
	Value Value        `json:"value"`
	Image string       `json:"image,omitempty"` // Source text, e.g. "20:00"
	Pos   SourcePos    `json:"pos"`
}

// Statement is one parsed line of a workout script.
type Statement struct {
	ID        int64      `json:"id"`
	ParentID  int64      `json:"parent_id,omitempty"` // 0 for top-level statements
	Children  [][]int64  `json:"children,omitempty"`  // Grouped child ids, in order
	Fragments []Fragment `json:"fragments"`
	Pos       SourcePos  `json:"pos"`
}

// HasParent reports whether the statement is nested.
func (s *Statement) HasParent() bool {
	return s.ParentID != 0
}

// HasChildren reports whether the statement has at least one child group.
func (s *Statement) HasChildren() bool {
	return len(s.Children) > 0
}

// Has reports whether the statement carries a fragment of the given kind.
func (s *Statement) Has(kind FragmentKind) bool {
	_, ok := s.First(kind)
	return ok
}

// First returns the first fragment of the given kind.
func (s *Statement) First(kind FragmentKind) (Fragment, bool) {
	for _, f := range s.Fragments {
		if f.Kind == kind {
			return f, true
		}
	}
	return Fragment{}, false
}

// All returns every fragment of the given kind, in source order.
func (s *Statement) All(kind FragmentKind) []Fragment {
	var out []Fragment
	for _, f := range s.Fragments {
		if f.Kind == kind {
			out = append(out, f)
		}
	}
	return out
}

// Kinds returns the distinct fragment kinds in first-seen order.
func (s *Statement) Kinds() []FragmentKind {
	seen := make(map[FragmentKind]bool, len(s.Fragments))
	var out []FragmentKind
	for _, f := range s.Fragments {
		if !seen[f.Kind] {
			seen[f.Kind] = true
			out = append(out, f.Kind)
		}
	}
	return out
}

// ActionName returns the action fragment's value, or "".
func (s *Statement) ActionName() string {
	f, ok := s.First(KindAction)
	if !ok {
		return ""
	}
	name, _ := AsString(f.Value)
	return name
}

// TimerMillis returns the timer fragment's duration in milliseconds.
func (s *Statement) TimerMillis() (int64, bool) {
	f, ok := s.First(KindTimer)
	if !ok {
		return 0, false
	}
	return AsInt(f.Value)
}
