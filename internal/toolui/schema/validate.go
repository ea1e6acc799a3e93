package schema

import (
	"fmt"
	"strings"

	"golang.org/x/text/currency"
	"golang.org/x/text/language"
)

// Validate checks the rules a JSON Schema cannot express.
func (t DataTable) Validate() []Issue {
	var issues []Issue
	keys := make(map[string]struct{}, len(t.Columns))
	for i, col := range t.Columns {
		path := fmt.Sprintf("columns[%d]", i)
		if _, dup := keys[col.Key]; dup {
			issues = append(issues, Issue{Path: path + ".key", Message: fmt.Sprintf("duplicate key %q", col.Key)})
		}
		keys[col.Key] = struct{}{}
		issues = append(issues, validateFormat(path+".format", col.Format)...)
	}

	issues = append(issues, validateSort("sort", t.Sort, keys)...)
	issues = append(issues, validateSort("defaultSort", t.DefaultSort, keys)...)
	issues = append(issues, validateLocale(t.Locale)...)
	issues = append(issues, validateActions("actions", t.Actions)...)

	if t.RowIDKey != "" {
		seen := make(map[string]int, len(t.Data))
		for i, row := range t.Data {
			id := row.Get(t.RowIDKey)
			path := fmt.Sprintf("data[%d].%s", i, t.RowIDKey)
			if id.IsEmpty() {
				issues = append(issues, Issue{Path: path, Message: "row id is empty"})
				continue
			}
			if first, dup := seen[id.String()]; dup {
				issues = append(issues, Issue{Path: path, Message: fmt.Sprintf("duplicate row id (first at data[%d])", first)})
				continue
			}
			seen[id.String()] = i
		}
	}
	return issues
}

func (s StatsDisplay) Validate() []Issue {
	var issues []Issue
	keys := make(map[string]struct{}, len(s.Stats))
	for i, stat := range s.Stats {
		path := fmt.Sprintf("stats[%d]", i)
		if _, dup := keys[stat.Key]; dup {
			issues = append(issues, Issue{Path: path + ".key", Message: fmt.Sprintf("duplicate key %q", stat.Key)})
		}
		keys[stat.Key] = struct{}{}
		issues = append(issues, validateFormat(path+".format", stat.Format)...)
	}
	return append(issues, validateLocale(s.Locale)...)
}

func (a ApprovalPrompt) Validate() []Issue {
	return validateActions("actions", a.Actions)
}

func validateSort(path string, sort *SortState, columns map[string]struct{}) []Issue {
	if sort == nil || sort.IsZero() {
		return nil
	}
	switch {
	case sort.By == "":
		return []Issue{{Path: path + ".direction", Message: "direction requires by"}}
	case sort.Direction == "":
		return []Issue{{Path: path + ".by", Message: "by requires direction"}}
	}
	if _, ok := columns[sort.By]; !ok {
		return []Issue{{Path: path + ".by", Message: fmt.Sprintf("unknown column %q", sort.By)}}
	}
	return nil
}

func validateFormat(path string, f *Format) []Issue {
	if f == nil {
		return nil
	}
	switch spec := f.Spec.(type) {
	case CurrencyFormat:
		if _, err := currency.ParseISO(strings.ToUpper(spec.Currency)); err != nil {
			return []Issue{{Path: path + ".currency", Message: fmt.Sprintf("unknown ISO 4217 code %q", spec.Currency)}}
		}
	case StatusFormat:
		if len(spec.StatusMap) == 0 {
			return []Issue{{Path: path + ".statusMap", Message: "must not be empty"}}
		}
	case BooleanFormat:
		if spec.Labels != nil && (spec.Labels.True == "" || spec.Labels.False == "") {
			return []Issue{{Path: path + ".labels", Message: "both labels must be non-empty"}}
		}
	}
	return nil
}

func validateLocale(tag string) []Issue {
	if tag == "" {
		return nil
	}
	if _, err := language.Parse(tag); err != nil {
		return []Issue{{Path: "locale", Message: fmt.Sprintf("invalid BCP-47 tag %q", tag)}}
	}
	return nil
}

func validateActions(path string, actions []Action) []Issue {
	var issues []Issue
	ids := make(map[string]struct{}, len(actions))
	for i, a := range actions {
		if _, dup := ids[a.ID]; dup {
			issues = append(issues, Issue{Path: fmt.Sprintf("%s[%d].id", path, i), Message: fmt.Sprintf("duplicate action id %q", a.ID)})
		}
		ids[a.ID] = struct{}{}
	}
	return issues
}
