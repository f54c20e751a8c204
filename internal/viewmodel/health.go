package viewmodel

import (
	"sort"
	"strings"
)

// Health bands derived from the upstream score.
const (
	BandHealthy  = "healthy"
	BandAtRisk   = "at_risk"
	BandCritical = "critical"
	BandUnknown  = "unknown"
)

const (
	healthyFrom = 80.0
	atRiskFrom  = 50.0
)

// Health is the summary panel of one customer.
type Health struct {
	Score     *float64 `json:"score,omitempty"`
	Band      string   `json:"band"`
	Status    string   `json:"status"`
	UpdatedAt string   `json:"updated_at"`
	Issues    []string `json:"issues"`
}

var (
	healthScoreAliases   = []string{"healthScore", "score"}
	healthStatusAliases  = []string{"status", "healthStatus", "grade"}
	healthUpdatedAliases = []string{"updatedAt", "evaluatedAt", "lastEvaluated"}
	healthIssueKeys      = []string{"issues", "findings"}
	issueTextAliases     = []string{"message", "title", "description"}
)

// HealthSummary decodes a health document. Missing fields fall back to the
// placeholder and the unknown band.
func HealthSummary(raw []byte) (Health, error) {
	rec, err := decodeRecord(raw)
	if err != nil {
		return Health{}, err
	}

	status, statusOK := rec.firstString(healthStatusAliases...)
	updated, updatedOK := rec.firstString(healthUpdatedAliases...)

	h := Health{
		Band:      BandUnknown,
		Status:    orPlaceholder(status, statusOK),
		UpdatedAt: orPlaceholder(updated, updatedOK),
		Issues:    []string{},
	}
	if score, ok := rec.firstNumber(healthScoreAliases...); ok {
		h.Score = &score
		h.Band = BandFor(score)
	}

	for _, key := range healthIssueKeys {
		items, ok := rec[key].([]any)
		if !ok {
			continue
		}
		for _, item := range items {
			switch v := item.(type) {
			case string:
				h.Issues = append(h.Issues, v)
			case map[string]any:
				if text, ok := Record(v).firstString(issueTextAliases...); ok {
					h.Issues = append(h.Issues, text)
				}
			}
		}
		break
	}
	return h, nil
}

// BandFor buckets a health score.
func BandFor(score float64) string {
	switch {
	case score >= healthyFrom:
		return BandHealthy
	case score >= atRiskFrom:
		return BandAtRisk
	default:
		return BandCritical
	}
}

// AlertRow is one line of the alerts tab.
type AlertRow struct {
	Severity string `json:"severity"`
	Title    string `json:"title"`
	Device   string `json:"device"`
	RaisedAt string `json:"raised_at"`
}

var (
	alertSeverityAliases = []string{"severity", "level", "priority"}
	alertTitleAliases    = []string{"title", "message", "description"}
	alertDeviceAliases   = []string{"deviceName", "device"}
	alertRaisedAliases   = []string{"createdAt", "raisedAt", "timestamp"}
)

var severityRank = map[string]int{
	"critical": 0,
	"major":    1,
	"high":     1,
	"warning":  2,
	"medium":   2,
	"minor":    3,
	"low":      3,
	"info":     4,
}

// AlertRows decodes the alerts document, most severe first.
func AlertRows(raw []byte) ([]AlertRow, error) {
	records, err := decodeList(raw, "alerts", "items", "data")
	if err != nil {
		return nil, err
	}

	rows := make([]AlertRow, 0, len(records))
	for _, rec := range records {
		sev, sevOK := rec.firstString(alertSeverityAliases...)
		title, titleOK := rec.firstString(alertTitleAliases...)
		device, deviceOK := rec.firstString(alertDeviceAliases...)
		raised, raisedOK := rec.firstString(alertRaisedAliases...)

		rows = append(rows, AlertRow{
			Severity: orPlaceholder(strings.ToLower(sev), sevOK),
			Title:    orPlaceholder(title, titleOK),
			Device:   orPlaceholder(device, deviceOK),
			RaisedAt: orPlaceholder(raised, raisedOK),
		})
	}

	sort.SliceStable(rows, func(i, j int) bool {
		return rankOf(rows[i].Severity) < rankOf(rows[j].Severity)
	})
	return rows, nil
}

func rankOf(severity string) int {
	if r, ok := severityRank[severity]; ok {
		return r
	}
	return len(severityRank)
}

// CustomerHealth pairs a customer with its health summary. Health is nil
// when it could not be loaded.
type CustomerHealth struct {
	Customer CustomerRow
	Health   *Health
}

// RollupEntry is one customer line of the executive rollup.
type RollupEntry struct {
	ID    string   `json:"id"`
	Name  string   `json:"name"`
	Score *float64 `json:"score,omitempty"`
	Band  string   `json:"band"`
}

// ExecutiveRollup aggregates health across every customer.
type ExecutiveRollup struct {
	Customers    int           `json:"customers"`
	Healthy      int           `json:"healthy"`
	AtRisk       int           `json:"at_risk"`
	Critical     int           `json:"critical"`
	Unknown      int           `json:"unknown"`
	AverageScore *float64      `json:"average_score,omitempty"`
	Worst        []RollupEntry `json:"worst"`
}

// worstListed caps the "needs attention" list.
const worstListed = 5

// Rollup folds per-customer health into the executive view.
func Rollup(items []CustomerHealth) ExecutiveRollup {
	r := ExecutiveRollup{Customers: len(items), Worst: []RollupEntry{}}

	var sum float64
	var scored []RollupEntry
	for _, it := range items {
		entry := RollupEntry{ID: it.Customer.ID, Name: it.Customer.Name, Band: BandUnknown}
		if it.Health != nil && it.Health.Score != nil {
			entry.Score = it.Health.Score
			entry.Band = it.Health.Band
		}

		switch entry.Band {
		case BandHealthy:
			r.Healthy++
		case BandAtRisk:
			r.AtRisk++
		case BandCritical:
			r.Critical++
		default:
			r.Unknown++
		}

		if entry.Score != nil {
			sum += *entry.Score
			scored = append(scored, entry)
		}
	}

	if len(scored) > 0 {
		avg := sum / float64(len(scored))
		r.AverageScore = &avg
	}

	sort.SliceStable(scored, func(i, j int) bool { return *scored[i].Score < *scored[j].Score })
	for i := 0; i < len(scored) && i < worstListed; i++ {
		if scored[i].Band == BandHealthy {
			break
		}
		r.Worst = append(r.Worst, scored[i])
	}
	return r
}
