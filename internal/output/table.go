package output

import (
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/joegilkes/speechcli/internal/clierr"
)

// tabulate renders a list of records as aligned columns. The column set is
// the union of all record keys, sorted, so no field is dropped. A single
// record renders as one row; a scalar list renders as one column.
func tabulate(v any) (string, error) {
	var rows []map[string]any
	switch t := v.(type) {
	case []any:
		for _, item := range t {
			m, ok := item.(map[string]any)
			if !ok {
				m = map[string]any{"value": item}
			}
			rows = append(rows, m)
		}
	case map[string]any:
		rows = []map[string]any{t}
	default:
		return "", clierr.New(clierr.Output, "table format needs a record or list result")
	}
	if len(rows) == 0 {
		return "(empty)", nil
	}

	colSet := map[string]bool{}
	for _, r := range rows {
		for k := range r {
			colSet[k] = true
		}
	}
	cols := make([]string, 0, len(colSet))
	for k := range colSet {
		cols = append(cols, k)
	}
	sort.Strings(cols)

	var b strings.Builder
	w := tabwriter.NewWriter(&b, 0, 4, 2, ' ', 0)
	w.Write([]byte(strings.Join(cols, "\t") + "\n"))
	for _, r := range rows {
		cells := make([]string, len(cols))
		for i, c := range cols {
			if val, ok := r[c]; ok {
				cells[i] = scalarString(val)
			}
		}
		w.Write([]byte(strings.Join(cells, "\t") + "\n"))
	}
	w.Flush()
	return b.String(), nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
