package listquery

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/pitabwire/opsdesk/model"
)

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02",
	"2006-01-02 15:04:05",
	"Jan 2, 2006",
	"01/02/2006",
}

// ParseSortKey converts a raw sort key into a comparable number. Dates become
// Unix seconds; numbers may carry currency symbols and thousands separators.
// Unparseable input yields -Inf and false, which orders as the oldest value.
func ParseSortKey(raw, kind string) (float64, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return negInf, false
	}
	if kind == model.SortKindNumber {
		return parseAmount(raw)
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return float64(t.Unix()), true
		}
	}
	return negInf, false
}

// ParseAmount parses a plain or currency-formatted number such as "$1,250.00".
func ParseAmount(raw string) (float64, bool) {
	return parseAmount(strings.TrimSpace(raw))
}

func parseAmount(raw string) (float64, bool) {
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case r >= '0' && r <= '9', r == '.', r == '-', r == '+':
			return r
		default:
			return -1
		}
	}, raw)
	if cleaned == "" {
		return negInf, false
	}
	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return negInf, false
	}
	return v, true
}

// SortRecords returns a sorted copy of records. Newest sorts descending by
// key, oldest ascending; any other order behaves as newest. Records with
// equal keys keep their relative input order.
func SortRecords(records []model.Record, cfg Config, order model.SortOrder) []model.Record {
	cfg = cfg.withDefaults()

	type keyed struct {
		rec model.Record
		key float64
	}
	items := make([]keyed, len(records))
	for i, r := range records {
		k, _ := ParseSortKey(r.Field(cfg.SortField), cfg.SortKind)
		items[i] = keyed{rec: r, key: k}
	}

	ascending := order == model.SortOldest
	sort.SliceStable(items, func(i, j int) bool {
		if ascending {
			return items[i].key < items[j].key
		}
		return items[i].key > items[j].key
	})

	out := make([]model.Record, len(items))
	for i, it := range items {
		out[i] = it.rec
	}
	return out
}
