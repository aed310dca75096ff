package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"steady/internal/core"
)

const dateLayout = "2006-01-02"

// Column names recognized in CSV headers. Any other numeric column is read
// as a covariate; an empty cell is an unknown reading.
var (
	startColumns   = []string{"start", "period_start", "date"}
	endColumns     = []string{"end", "period_end"}
	grossColumns   = []string{"gross", "gross_earnings", "earnings", "total_earnings"}
	hoursColumns   = []string{"hours_active", "hours"}
	minutesColumns = []string{"total_minutes_worked", "minutes_active"}
	tripsColumns   = []string{"trips", "trip_count", "total_trips"}

	ignoredColumns = map[string]bool{
		"id": true, "driver_id": true, "day_of_week": true, "is_weekend": true,
		"weather": true, "rating": true, "hour": true, "observed": true,
	}

	covariateAliases = map[string]string{
		"is_event":          core.CovLocalEvents,
		"rain_mm":           core.CovRainfall,
		"holiday":           core.CovHoliday,
		"competition_index": core.CovDemandIndex,
	}
)

// header maps recognized columns to their index; -1 means absent.
type header struct {
	start, end, hour int
	gross, hours     int
	minutes, trips   int
	observed         int
	covariates       map[int]string
}

// ParseCSV reads one period per row. Rows with only a date cover that day;
// rows with a date and an hour cover that hour. Times are UTC.
func ParseCSV(r io.Reader) ([]core.EarningsPeriod, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	head, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, &core.ValidationError{Field: "csv", Constraint: "missing header row"}
		}
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	h, err := parseHeader(head)
	if err != nil {
		return nil, err
	}

	var periods []core.EarningsPeriod
	for line := 2; ; line++ {
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv line %d: %w", line, err)
		}
		if blank(rec) {
			continue
		}
		p, err := h.period(rec)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		periods = append(periods, p)
	}
	return periods, nil
}

// ParseRows reads periods from a header row followed by data rows, the
// shape spreadsheet APIs return. Row numbers in errors are 1-based.
func ParseRows(rows [][]string) ([]core.EarningsPeriod, error) {
	if len(rows) == 0 {
		return nil, &core.ValidationError{Field: "rows", Constraint: "missing header row"}
	}
	h, err := parseHeader(rows[0])
	if err != nil {
		return nil, err
	}
	var periods []core.EarningsPeriod
	for i, rec := range rows[1:] {
		if blank(rec) {
			continue
		}
		p, err := h.period(rec)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		periods = append(periods, p)
	}
	return periods, nil
}

func parseHeader(cols []string) (header, error) {
	h := header{start: -1, end: -1, gross: -1, hours: -1, minutes: -1, trips: -1, hour: -1, observed: -1, covariates: map[int]string{}}
	for i, raw := range cols {
		name := strings.ToLower(strings.TrimSpace(raw))
		switch {
		case oneOf(name, startColumns):
			h.start = i
		case oneOf(name, endColumns):
			h.end = i
		case oneOf(name, grossColumns):
			h.gross = i
		case oneOf(name, hoursColumns):
			h.hours = i
		case oneOf(name, minutesColumns):
			h.minutes = i
		case oneOf(name, tripsColumns):
			h.trips = i
		}
		switch name {
		case "hour":
			h.hour = i
		case "observed":
			h.observed = i
		}
		if isKnownColumn(name) || ignoredColumns[name] || name == "" {
			continue
		}
		if alias, ok := covariateAliases[name]; ok {
			name = alias
		}
		h.covariates[i] = name
	}
	if h.start < 0 {
		return h, &core.ValidationError{Field: "csv", Constraint: "header needs a start or date column"}
	}
	if h.gross < 0 {
		return h, &core.ValidationError{Field: "csv", Constraint: "header needs a gross or earnings column"}
	}
	return h, nil
}

func (h header) period(rec []string) (core.EarningsPeriod, error) {
	cell := func(i int) string {
		if i < 0 || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	start, dateOnly, err := parseTime(cell(h.start))
	if err != nil {
		return core.EarningsPeriod{}, &core.ValidationError{Field: "start", Constraint: "must be YYYY-MM-DD or RFC3339"}
	}
	var end time.Time
	switch {
	case cell(h.end) != "":
		if end, _, err = parseTime(cell(h.end)); err != nil {
			return core.EarningsPeriod{}, &core.ValidationError{Field: "end", Constraint: "must be YYYY-MM-DD or RFC3339"}
		}
	case cell(h.hour) != "":
		hour, err := strconv.Atoi(cell(h.hour))
		if err != nil || hour < 0 || hour > 23 || !dateOnly {
			return core.EarningsPeriod{}, &core.ValidationError{Field: "hour", Constraint: "must be 0-23 next to a date"}
		}
		start = start.Add(time.Duration(hour) * time.Hour)
		end = start.Add(time.Hour)
	case dateOnly:
		end = start.AddDate(0, 0, 1)
	default:
		return core.EarningsPeriod{}, &core.ValidationError{Field: "end", Constraint: "required when start has a time of day"}
	}

	p := core.EarningsPeriod{Start: start, End: end, Observed: true}
	if v := cell(h.observed); v != "" {
		observed, err := strconv.ParseBool(v)
		if err != nil {
			return p, &core.ValidationError{Field: "observed", Constraint: "must be true or false"}
		}
		p.Observed = observed
	}
	if !p.Observed {
		p.Covariates, err = h.readCovariates(cell)
		return p, err
	}

	if p.Gross, err = core.ParseGross(cell(h.gross)); err != nil {
		return p, err
	}
	if v := cell(h.hours); v != "" {
		if p.HoursActive, err = strconv.ParseFloat(v, 64); err != nil {
			return p, &core.ValidationError{Field: "hours_active", Constraint: "must be a number"}
		}
	} else if v := cell(h.minutes); v != "" {
		minutes, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return p, &core.ValidationError{Field: "minutes_active", Constraint: "must be a number"}
		}
		p.HoursActive = minutes / 60
	}
	if v := cell(h.trips); v != "" {
		if p.Trips, err = strconv.Atoi(v); err != nil {
			return p, &core.ValidationError{Field: "trips", Constraint: "must be an integer"}
		}
	}
	if p.Covariates, err = h.readCovariates(cell); err != nil {
		return p, err
	}
	return p, p.Validate()
}

func (h header) readCovariates(cell func(int) string) (core.Covariates, error) {
	if len(h.covariates) == 0 {
		return nil, nil
	}
	cov := make(core.Covariates, len(h.covariates))
	for i, name := range h.covariates {
		v := cell(i)
		if v == "" {
			cov[name] = core.CovariateValue{}
			continue
		}
		f, err := parseReading(v)
		if err != nil {
			return nil, &core.ValidationError{Field: "covariates." + name, Constraint: "must be a number, true/false or empty"}
		}
		cov[name] = core.Known(f)
	}
	return cov, nil
}

func parseReading(v string) (float64, error) {
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return f, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return 0, err
	}
	if b {
		return 1, nil
	}
	return 0, nil
}

func parseTime(s string) (time.Time, bool, error) {
	if t, err := time.Parse(dateLayout, s); err == nil {
		return t.UTC(), true, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, false, err
	}
	return t.UTC(), false, nil
}

func isKnownColumn(name string) bool {
	for _, group := range [][]string{startColumns, endColumns, grossColumns, hoursColumns, minutesColumns, tripsColumns} {
		if oneOf(name, group) {
			return true
		}
	}
	return false
}

func oneOf(name string, names []string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}

func blank(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
