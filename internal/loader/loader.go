package loader

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"github.com/roach88/wodrun/internal/ir"
)

// Workout is a loaded script.
type Workout struct {
	Name   string
	Source string // File path, or the name given to LoadBytes
	Script *ir.Script
}

// LoadFile reads and compiles one CUE script file.
func LoadFile(path string) (*Workout, error) {
	src, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("script not found: %s", path)}
	}
	if err != nil {
		return nil, &LoadError{Code: ErrCodeGeneric, Message: fmt.Sprintf("reading %s: %v", path, err)}
	}
	return LoadBytes(path, src)
}

// LoadBytes compiles CUE source. filename is used in error positions and as
// the default workout name.
func LoadBytes(filename string, src []byte) (*Workout, error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(src, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, fromCUE(err, ErrCodeBuildFailed)
	}
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, fromCUE(err, ErrCodeBuildFailed)
	}
	return compileWorkout(filename, v)
}

// LoadDir loads every .cue file in dir (non-recursive), sorted by name.
// All files are attempted; errors are collected.
func LoadDir(dir string) ([]*Workout, []error) {
	files, err := FindCUEFiles(dir)
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", err)}}
	}
	if len(files) == 0 {
		return nil, []error{&LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", dir)}}
	}
	var out []*Workout
	var errs []error
	for _, f := range files {
		w, err := LoadFile(f)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out = append(out, w)
	}
	return out, errs
}

// FindCUEFiles returns the .cue files directly inside dir, sorted.
func FindCUEFiles(dir string) ([]string, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("not a directory: %s", dir)
	}
	matches, err := filepath.Glob(filepath.Join(dir, "*.cue"))
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)
	return matches, nil
}

func compileWorkout(filename string, v cue.Value) (*Workout, error) {
	w := &Workout{Source: filename, Name: strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))}

	if nameVal := v.LookupPath(cue.ParsePath("name")); nameVal.Exists() {
		name, err := nameVal.String()
		if err != nil {
			return nil, &LoadError{Code: ErrCodeInvalidValue, Field: "name", Message: "name must be a string", Pos: nameVal.Pos()}
		}
		w.Name = name
	}

	list := v.LookupPath(cue.ParsePath("workout"))
	if !list.Exists() {
		return nil, &LoadError{Code: ErrCodeNoWorkout, Field: "workout", Message: "workout is required", Pos: v.Pos()}
	}

	b := &builder{}
	groups, err := b.groups(list, 0)
	if err != nil {
		return nil, err
	}
	if len(groups) == 0 {
		return nil, &LoadError{Code: ErrCodeNoWorkout, Field: "workout", Message: "workout has no statements", Pos: list.Pos()}
	}
	for _, g := range groups {
		if len(g) != 1 {
			return nil, &LoadError{Code: ErrCodeInvalidGroup, Field: "workout",
				Message: "top-level statements cannot be grouped", Pos: list.Pos()}
		}
	}

	script, err := ir.NewScript(b.stmts)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeInvalidTree, Message: err.Error(), Pos: list.Pos()}
	}
	w.Script = script
	return w, nil
}

type builder struct {
	stmts []ir.Statement
	next  int64
}

// groups compiles a list whose elements are statements or lists of
// statements (supersets) and returns the id groups.
func (b *builder) groups(list cue.Value, parent int64) ([][]int64, error) {
	iter, err := list.List()
	if err != nil {
		return nil, &LoadError{Code: ErrCodeInvalidValue, Message: "expected a list of statements", Pos: list.Pos()}
	}
	var out [][]int64
	for iter.Next() {
		elem := iter.Value()
		if elem.Kind() == cue.ListKind {
			inner, err := elem.List()
			if err != nil {
				return nil, fromCUE(err, ErrCodeInvalidGroup)
			}
			var group []int64
			for inner.Next() {
				id, err := b.statement(inner.Value(), parent)
				if err != nil {
					return nil, err
				}
				group = append(group, id)
			}
			if len(group) == 0 {
				return nil, &LoadError{Code: ErrCodeInvalidGroup, Message: "empty statement group", Pos: elem.Pos()}
			}
			out = append(out, group)
			continue
		}
		id, err := b.statement(elem, parent)
		if err != nil {
			return nil, err
		}
		out = append(out, []int64{id})
	}
	return out, nil
}

// statement compiles one statement (and its subtree) and returns its id.
func (b *builder) statement(v cue.Value, parent int64) (int64, error) {
	if v.Kind() != cue.StructKind {
		return 0, &LoadError{Code: ErrCodeInvalidValue, Message: "statement must be a struct", Pos: v.Pos()}
	}
	b.next++
	id := b.next
	idx := len(b.stmts)
	b.stmts = append(b.stmts, ir.Statement{ID: id, ParentID: parent, Pos: sourcePos(v)})

	fields, err := v.Fields()
	if err != nil {
		return 0, fromCUE(err, ErrCodeInvalidValue)
	}
	var frags []ir.Fragment
	var children cue.Value
	hasChildren := false
	for fields.Next() {
		label := fields.Selector().String()
		fv := fields.Value()
		if label == "children" {
			children, hasChildren = fv, true
			continue
		}
		frag, err := fragment(label, fv)
		if err != nil {
			return 0, err
		}
		frags = append(frags, frag)
	}
	b.stmts[idx].Fragments = frags

	if hasChildren {
		groups, err := b.groups(children, id)
		if err != nil {
			return 0, err
		}
		b.stmts[idx].Children = groups
	}
	return id, nil
}

func fragment(label string, v cue.Value) (ir.Fragment, error) {
	kind := ir.FragmentKind(label)
	if label == "reps" {
		kind = ir.KindRep
	}
	if !ir.KnownKinds[kind] {
		return ir.Fragment{}, &LoadError{Code: ErrCodeUnknownField, Field: label,
			Message: fmt.Sprintf("unknown fragment %q", label), Pos: v.Pos()}
	}
	frag := ir.Fragment{Kind: kind, Pos: sourcePos(v)}
	invalid := func(want string) error {
		return &LoadError{Code: ErrCodeInvalidValue, Field: label,
			Message: fmt.Sprintf("%s must be %s", label, want), Pos: v.Pos()}
	}

	switch kind {
	case ir.KindTimer:
		ms, image, err := timerValue(v)
		if err != nil {
			return ir.Fragment{}, &LoadError{Code: ErrCodeInvalidTimer, Field: label, Message: err.Error(), Pos: v.Pos()}
		}
		frag.Value, frag.Image = ir.Int(ms), image
	case ir.KindRep, ir.KindIncrement:
		n, err := v.Int64()
		if err != nil {
			return ir.Fragment{}, invalid("an integer")
		}
		frag.Value = ir.Int(n)
	case ir.KindRounds:
		if v.Kind() == cue.ListKind {
			var reps []int64
			if err := v.Decode(&reps); err != nil || len(reps) == 0 {
				return ir.Fragment{}, invalid("an integer or a non-empty list of integers")
			}
			scheme := make(ir.Array, len(reps))
			for i, r := range reps {
				scheme[i] = ir.Int(r)
			}
			frag.Value = scheme
		} else {
			n, err := v.Int64()
			if err != nil {
				return ir.Fragment{}, invalid("an integer or a list of integers")
			}
			frag.Value = ir.Int(n)
		}
	case ir.KindDistance, ir.KindResistance:
		var amt struct {
			Amount int64  `json:"amount"`
			Unit   string `json:"unit"`
		}
		if err := v.Decode(&amt); err != nil || v.Kind() != cue.StructKind {
			return ir.Fragment{}, invalid("{amount: int, unit: string}")
		}
		frag.Value = ir.NewObject(ir.P("amount", ir.Int(amt.Amount)), ir.P("unit", ir.String(amt.Unit)))
		frag.Image = fmt.Sprintf("%d%s", amt.Amount, amt.Unit)
	default:
		s, err := v.String()
		if err != nil {
			return ir.Fragment{}, invalid("a string")
		}
		frag.Value = ir.String(s)
		frag.Image = s
	}
	return frag, nil
}

// timerValue accepts milliseconds (int), a clock string ("20:00",
// "1:00:00", "45s") or "^" for a count-up timer.
func timerValue(v cue.Value) (int64, string, error) {
	if v.Kind() == cue.IntKind {
		ms, err := v.Int64()
		if err != nil || ms < 0 {
			return 0, "", fmt.Errorf("timer must be non-negative milliseconds")
		}
		return ms, ir.FormatMillis(ms), nil
	}
	s, err := v.String()
	if err != nil {
		return 0, "", fmt.Errorf("timer must be milliseconds or a clock string")
	}
	ms, err := ParseClock(s)
	if err != nil {
		return 0, "", err
	}
	return ms, s, nil
}

// ParseClock converts "m:ss", "h:mm:ss", "<n>s" or "^" (count up) to
// milliseconds.
func ParseClock(s string) (int64, error) {
	s = strings.TrimSpace(s)
	switch {
	case s == "^":
		return 0, nil
	case strings.HasSuffix(s, "s") && !strings.Contains(s, ":"):
		n, err := strconv.ParseInt(strings.TrimSuffix(s, "s"), 10, 64)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("invalid timer %q", s)
		}
		return n * 1000, nil
	}

	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("invalid timer %q: want m:ss or h:mm:ss", s)
	}
	var total int64
	for i, p := range parts {
		n, err := strconv.ParseInt(p, 10, 64)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("invalid timer %q", s)
		}
		if i > 0 && n >= 60 {
			return 0, fmt.Errorf("invalid timer %q: field %q out of range", s, p)
		}
		total = total*60 + n
	}
	return total * 1000, nil
}

func sourcePos(v cue.Value) ir.SourcePos {
	pos := v.Pos()
	if !pos.IsValid() {
		return ir.SourcePos{}
	}
	return ir.SourcePos{Line: pos.Line(), Column: pos.Column()}
}
