package viewmodel

import (
	"sort"
	"strings"
)

// Match weights used to rank search results.
const (
	matchExact     = 100.0
	matchPrefix    = 75.0
	matchSubstring = 50.0
	matchWords     = 25.0

	// earlier substring hits rank higher
	matchPositionBonus = 10.0
)

// CustomerRow is one line of the customer list.
type CustomerRow struct {
	ID     string   `json:"id"`
	Name   string   `json:"name"`
	Score  *float64 `json:"score,omitempty"`
	Status string   `json:"status"`
	Region string   `json:"region"`
}

var (
	customerIDAliases     = []string{"id", "customerId", "customer_id"}
	customerNameAliases   = []string{"name", "customerName", "displayName"}
	customerScoreAliases  = []string{"healthScore", "score"}
	customerStatusAliases = []string{"status", "healthStatus"}
	customerRegionAliases = []string{"region", "location"}
)

// CustomerRows decodes the customer list (bare array, or wrapped under
// "customers"/"items"). Records without an identifier are skipped.
func CustomerRows(raw []byte) ([]CustomerRow, error) {
	records, err := decodeList(raw, "customers", "items", "data")
	if err != nil {
		return nil, err
	}

	rows := make([]CustomerRow, 0, len(records))
	for _, rec := range records {
		id, ok := rec.firstString(customerIDAliases...)
		if !ok {
			continue
		}
		name, nameOK := rec.firstString(customerNameAliases...)
		if !nameOK {
			name = id
		}
		status, statusOK := rec.firstString(customerStatusAliases...)
		region, regionOK := rec.firstString(customerRegionAliases...)

		row := CustomerRow{
			ID:     id,
			Name:   name,
			Status: orPlaceholder(status, statusOK),
			Region: orPlaceholder(region, regionOK),
		}
		if score, ok := rec.firstNumber(customerScoreAliases...); ok {
			row.Score = &score
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// FilterCustomers returns the rows matching query, best match first. An
// empty query returns rows unchanged.
func FilterCustomers(rows []CustomerRow, query string) []CustomerRow {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return rows
	}

	type scored struct {
		row   CustomerRow
		score float64
	}

	matches := make([]scored, 0, len(rows))
	for _, row := range rows {
		s := max(matchScore(query, row.Name), matchScore(query, row.ID))
		if s > 0 {
			matches = append(matches, scored{row: row, score: s})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool { return matches[i].score > matches[j].score })

	out := make([]CustomerRow, len(matches))
	for i, m := range matches {
		out[i] = m.row
	}
	return out
}

// matchScore rates how well a lowercased query matches text.
func matchScore(query, text string) float64 {
	text = strings.ToLower(text)
	if text == "" {
		return 0
	}

	switch {
	case text == query:
		return matchExact
	case strings.HasPrefix(text, query):
		return matchPrefix
	case strings.Contains(text, query):
		idx := strings.Index(text, query)
		return matchSubstring + matchPositionBonus*(1.0-float64(idx)/float64(len(text)))
	}

	words := strings.Fields(query)
	if len(words) < 2 {
		return 0
	}
	for _, w := range words {
		if !strings.Contains(text, w) {
			return 0
		}
	}
	return matchWords
}
