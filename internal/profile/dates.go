package profile

import (
	"regexp"
	"sort"
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

var (
	// standardDateRE matches 2024-01-02, 2024/1/2 and 2024.01.02 style dates
	// appearing inside free text.
	standardDateRE = regexp.MustCompile(`(20\d{2})[./-](\d{1,2})[./-](\d{1,2})`)
	// cjkDateRE matches 2024年1月2日 style dates.
	cjkDateRE = regexp.MustCompile(`(20\d{2})年\s*(\d{1,2})月\s*(\d{1,2})[日號]?`)
)

// parseFollowDate extracts the calendar date from a gateway timestamp. The
// gateway emits dates, datetimes with "T" or space separators, and both dash
// and slash styles.
func parseFollowDate(value string) (time.Time, bool) {
	text := strings.TrimSpace(value)
	if text == "" {
		return time.Time{}, false
	}
	base := text
	if i := strings.IndexByte(base, 'T'); i >= 0 {
		base = base[:i]
	}
	if i := strings.IndexByte(base, ' '); i >= 0 {
		base = base[:i]
	}
	base = strings.TrimSpace(strings.ReplaceAll(base, "/", "-"))

	for _, layout := range []string{dateLayout, "2006-1-2"} {
		if t, err := time.Parse(layout, base); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// formatFollowDate normalizes a gateway timestamp to ISO date, or "" when it
// does not parse.
func formatFollowDate(value string) string {
	if t, ok := parseFollowDate(value); ok {
		return t.Format(dateLayout)
	}
	return ""
}

// collectDatesFromTexts scans free text for dates in either standard or CJK
// notation.
func collectDatesFromTexts(texts []string) []time.Time {
	var dates []time.Time
	for _, text := range texts {
		if text == "" {
			continue
		}
		for _, re := range []*regexp.Regexp{standardDateRE, cjkDateRE} {
			for _, groups := range re.FindAllStringSubmatch(text, -1) {
				if t, ok := ymd(groups[1], groups[2], groups[3]); ok {
					dates = append(dates, t)
				}
			}
		}
	}
	return dates
}

func ymd(year, month, day string) (time.Time, bool) {
	t, err := time.Parse("2006-1-2", year+"-"+month+"-"+day)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// seemsLikeScheduleText reports whether free text carries a date, meaning it
// describes a visit schedule rather than a plan description.
func seemsLikeScheduleText(text string) bool {
	return standardDateRE.MatchString(text) || cjkDateRE.MatchString(text)
}

func uniqueSortedDates(dates []time.Time) []time.Time {
	seen := make(map[time.Time]bool, len(dates))
	out := make([]time.Time, 0, len(dates))
	for _, d := range dates {
		if !seen[d] {
			seen[d] = true
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}
