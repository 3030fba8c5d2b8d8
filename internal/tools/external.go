package tools

import (
	"context"
	"fmt"
	"strings"
)

const (
	policeReportsDataset = "external/police_reports.json"
	weatherDataset       = "external/weather_events.json"
)

// ExternalTools adapts public-record datasets: police reports and severe
// weather events. Lookups run as jq queries over the JSON documents.
type ExternalTools struct {
	repo *Repository
}

func NewExternalTools(repo *Repository) *ExternalTools {
	return &ExternalTools{repo: repo}
}

// VerifyPoliceReport checks that a police report exists in the public
// record feed.
func (e *ExternalTools) VerifyPoliceReport(ctx context.Context, reportNumber string) (map[string]any, error) {
	query := fmt.Sprintf(`.reports[] | select(.report_number == %q)`, reportNumber)
	results, err := e.repo.QueryJSON(ctx, policeReportsDataset, query)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return map[string]any{"report_number": reportNumber, "found": false}, nil
	}
	return map[string]any{"report_number": reportNumber, "found": true, "report": results[0]}, nil
}

// CheckWeatherEvents returns severe weather events recorded for a date,
// filtered to locations containing the given substring.
func (e *ExternalTools) CheckWeatherEvents(ctx context.Context, date, location string) (map[string]any, error) {
	query := fmt.Sprintf(`.events[] | select(.date == %q)`, date)
	results, err := e.repo.QueryJSON(ctx, weatherDataset, query)
	if err != nil {
		return nil, err
	}

	locLower := strings.ToLower(location)
	events := []any{}
	for _, res := range results {
		event, ok := res.(map[string]any)
		if !ok {
			continue
		}
		loc, _ := event["location"].(string)
		if strings.Contains(strings.ToLower(loc), locLower) {
			events = append(events, event)
		}
	}
	return map[string]any{
		"date":        date,
		"location":    location,
		"events":      events,
		"event_count": len(events),
	}, nil
}
