package ir

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var titleCaser = cases.Title(language.English)

// Label renders a short human label for a statement, e.g.
// "20:00 AMRAP" or "5 Pullups 95lb".
func Label(stmt *Statement) string {
	if stmt == nil {
		return ""
	}
	var parts []string
	for _, f := range stmt.Fragments {
		if part := fragmentLabel(f); part != "" {
			parts = append(parts, part)
		}
	}
	if len(parts) == 0 {
		return fmt.Sprintf("statement %d", stmt.ID)
	}
	return strings.Join(parts, " ")
}

func fragmentLabel(f Fragment) string {
	if f.Image != "" && f.Kind != KindEffort {
		return f.Image
	}
	switch f.Kind {
	case KindEffort:
		name, _ := AsString(f.Value)
		return titleCaser.String(NormalizeText(name))
	case KindTimer:
		ms, _ := AsInt(f.Value)
		return FormatMillis(ms)
	case KindRounds:
		if reps, ok := AsInts(f.Value); ok && len(reps) > 1 {
			strs := make([]string, len(reps))
			for i, r := range reps {
				strs[i] = fmt.Sprintf("%d", r)
			}
			return strings.Join(strs, "-")
		}
		n, _ := AsInt(f.Value)
		return fmt.Sprintf("(%d)", n)
	case KindRep:
		n, _ := AsInt(f.Value)
		return fmt.Sprintf("%d", n)
	case KindDistance, KindResistance:
		obj, ok := f.Value.(Object)
		if !ok {
			return ""
		}
		amount, _ := AsInt(obj["amount"])
		unit, _ := AsString(obj["unit"])
		return fmt.Sprintf("%d%s", amount, unit)
	case KindAction, KindText:
		s, _ := AsString(f.Value)
		return s
	}
	return ""
}

// FormatMillis renders a duration as m:ss (or h:mm:ss).
func FormatMillis(ms int64) string {
	if ms < 0 {
		ms = -ms
	}
	total := ms / 1000
	h, m, s := total/3600, (total%3600)/60, total%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}
