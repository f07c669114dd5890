package diagnostics

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	measurement "pv-telemetry/internal/measurement/domain"
)

// Health is the overall state of a logger over the scan window.
type Health string

const (
	HealthCritical Health = "critical"
	HealthWarning  Health = "warning"
	HealthInfo     Health = "info"
	HealthGood     Health = "good"
)

// Occurrence is one stored record carrying an error code.
type Occurrence struct {
	Timestamp time.Time
	Code      string
}

// Issue aggregates the occurrences of one code.
type Issue struct {
	Code         string    `json:"code"`
	Description  string    `json:"description"`
	Severity     Severity  `json:"severity"`
	Occurrences  int       `json:"occurrences"`
	FirstSeen    time.Time `json:"firstSeen"`
	LastSeen     time.Time `json:"lastSeen"`
	SuggestedFix string    `json:"suggestedFix"`
	Known        bool      `json:"known"`
}

// Report is the diagnostics result for one logger.
type Report struct {
	LoggerID      string                 `json:"loggerId"`
	LoggerType    measurement.LoggerType `json:"loggerType"`
	Days          int                    `json:"days"`
	From          time.Time              `json:"from"`
	To            time.Time              `json:"to"`
	OverallHealth Health                 `json:"overallHealth"`
	IssueCount    int                    `json:"issueCount"`
	Issues        []Issue                `json:"issues"`
	Summary       string                 `json:"summary"`
}

// BuildReport groups occurrences by code, looks each code up in the
// catalog and sorts issues by severity then descending count. limit caps
// the returned issues; IssueCount keeps the full number.
func BuildReport(catalog *Catalog, loggerID string, loggerType measurement.LoggerType, from, to time.Time, occurrences []Occurrence, limit int) Report {
	byCode := make(map[string]*Issue)
	for _, occ := range occurrences {
		code := strings.TrimSpace(occ.Code)
		if code == "" || code == "0" {
			continue
		}
		issue := byCode[code]
		if issue == nil {
			def, known := catalog.Lookup(loggerType, code)
			issue = &Issue{
				Code:         code,
				Description:  def.Description,
				Severity:     def.Severity,
				SuggestedFix: def.Fix,
				Known:        known,
				FirstSeen:    occ.Timestamp,
				LastSeen:     occ.Timestamp,
			}
			byCode[code] = issue
		}
		issue.Occurrences++
		if occ.Timestamp.Before(issue.FirstSeen) {
			issue.FirstSeen = occ.Timestamp
		}
		if occ.Timestamp.After(issue.LastSeen) {
			issue.LastSeen = occ.Timestamp
		}
	}

	issues := make([]Issue, 0, len(byCode))
	for _, issue := range byCode {
		issues = append(issues, *issue)
	}
	sort.Slice(issues, func(i, j int) bool {
		a, b := issues[i], issues[j]
		if a.Severity.rank() != b.Severity.rank() {
			return a.Severity.rank() < b.Severity.rank()
		}
		if a.Occurrences != b.Occurrences {
			return a.Occurrences > b.Occurrences
		}
		return a.Code < b.Code
	})

	health := overallHealth(issues)
	report := Report{
		LoggerID:      loggerID,
		LoggerType:    loggerType,
		Days:          int(math.Round(to.Sub(from).Hours() / 24)),
		From:          from,
		To:            to,
		OverallHealth: health,
		IssueCount:    len(issues),
		Issues:        issues,
	}
	if limit > 0 && len(issues) > limit {
		report.Issues = issues[:limit]
	}
	if len(issues) == 0 {
		report.Summary = "No errors detected - System health: GOOD"
	} else {
		report.Summary = fmt.Sprintf("Found %d issue(s) - System health: %s", len(issues), strings.ToUpper(string(health)))
	}
	return report
}

func overallHealth(issues []Issue) Health {
	if len(issues) == 0 {
		return HealthGood
	}
	// Issues are sorted, so the first one carries the worst severity.
	switch issues[0].Severity {
	case SeverityCritical:
		return HealthCritical
	case SeverityWarning:
		return HealthWarning
	}
	return HealthInfo
}
