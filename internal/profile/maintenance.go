package profile

import (
	"sort"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// serviceSummary is the dated view of a customer's maintenance history.
type serviceSummary struct {
	customerCode        string
	customerName        string
	latestServiceDate   string
	previousServiceDate string
	nextServiceDate     string
}

// maintenanceSummary reduces the follow-up records to the customer's latest
// and previous service dates plus a base date for the next visit. Records
// owned by the maintenance team drive the history; the task list refines the
// base date.
func (s *Service) maintenanceSummary(customerCode string, records, tasks []gjson.Result) serviceSummary {
	type dated struct {
		record gjson.Result
		date   time.Time
	}

	var parsed []dated
	for _, item := range records {
		if !strings.Contains(fieldText(item, "ower_name"), s.rules.Owners.Maintenance) {
			continue
		}
		if d, ok := parseFollowDate(fieldText(item, "followTime")); ok {
			parsed = append(parsed, dated{record: item, date: d})
		}
	}

	today := s.today()

	if len(parsed) == 0 {
		next := ""
		if d, ok := s.extractUpcomingTaskDate(tasks, today); ok {
			next = d.Format(dateLayout)
		}
		return serviceSummary{customerCode: customerCode, nextServiceDate: next}
	}

	sort.SliceStable(parsed, func(i, j int) bool { return parsed[i].date.After(parsed[j].date) })

	latestIndex := 0
	for idx, entry := range parsed {
		if !entry.date.After(today) {
			latestIndex = idx
			break
		}
	}

	latest := parsed[latestIndex]
	var previousDate time.Time
	havePrevious := false
	if latestIndex+1 < len(parsed) {
		previousDate = parsed[latestIndex+1].date
		havePrevious = true
	}

	nextBase, haveNext := s.selectTaskBaseDate(tasks, latest.date, previousDate, havePrevious)
	if !haveNext && havePrevious {
		nextBase, haveNext = previousDate, true
	}
	if !haveNext {
		nextBase, haveNext = latest.date, true
	}

	summary := serviceSummary{
		customerCode:      customerCode,
		customerName:      fieldText(latest.record, "customer_name"),
		latestServiceDate: latest.date.Format(dateLayout),
		nextServiceDate:   nextBase.Format(dateLayout),
	}
	if havePrevious {
		summary.previousServiceDate = previousDate.Format(dateLayout)
	}
	return summary
}

// taskDate reads the first parseable of startDate, planDate, endDate.
func taskDate(task gjson.Result) (time.Time, bool) {
	for _, field := range []string{"startDate", "planDate", "endDate"} {
		if d, ok := parseFollowDate(fieldText(task, field)); ok {
			return d, true
		}
	}
	return time.Time{}, false
}

func (s *Service) taskOwnedByServiceTeam(task gjson.Result) bool {
	keyword := s.rules.Owners.Task
	return keyword != "" && strings.Contains(fieldText(task, "ower_name"), keyword)
}

// extractUpcomingTaskDate picks a visit date straight from the task list when
// no maintenance history exists: the nearest future task wins, service-team
// tasks first, otherwise the most recent past task.
func (s *Service) extractUpcomingTaskDate(tasks []gjson.Result, reference time.Time) (time.Time, bool) {
	var ownerFuture, generalFuture, ownerPast, generalPast []time.Time

	for _, task := range tasks {
		d, ok := taskDate(task)
		if !ok {
			continue
		}
		isOwner := s.taskOwnedByServiceTeam(task)
		switch {
		case !d.Before(reference) && isOwner:
			ownerFuture = append(ownerFuture, d)
		case !d.Before(reference):
			generalFuture = append(generalFuture, d)
		case isOwner:
			ownerPast = append(ownerPast, d)
		default:
			generalPast = append(generalPast, d)
		}
	}

	for _, bucket := range [][]time.Time{ownerFuture, generalFuture} {
		if len(bucket) > 0 {
			return minDate(bucket), true
		}
	}
	for _, bucket := range [][]time.Time{ownerPast, generalPast} {
		if len(bucket) > 0 {
			return maxDate(bucket), true
		}
	}
	return time.Time{}, false
}

// selectTaskBaseDate picks the task date the next-service estimate builds on.
// Future tasks beat tasks newer than the latest service, which beat past
// tasks; within each band the service team outranks everyone else.
func (s *Service) selectTaskBaseDate(tasks []gjson.Result, latestDate, previousDate time.Time, havePrevious bool) (time.Time, bool) {
	if len(tasks) == 0 {
		return time.Time{}, false
	}

	today := s.today()
	var ownerFutureToday, ownerFutureLatest, ownerPast []time.Time
	var generalFutureToday, generalFutureLatest, generalPast []time.Time

	for _, task := range tasks {
		d, ok := taskDate(task)
		if !ok {
			continue
		}
		isOwner := s.taskOwnedByServiceTeam(task)
		switch {
		case d.After(today) && isOwner:
			ownerFutureToday = append(ownerFutureToday, d)
		case d.After(today):
			generalFutureToday = append(generalFutureToday, d)
		case d.After(latestDate) && isOwner:
			ownerFutureLatest = append(ownerFutureLatest, d)
		case d.After(latestDate):
			generalFutureLatest = append(generalFutureLatest, d)
		case isOwner:
			ownerPast = append(ownerPast, d)
		default:
			generalPast = append(generalPast, d)
		}
	}

	for _, bucket := range [][]time.Time{ownerFutureToday, generalFutureToday, ownerFutureLatest, generalFutureLatest} {
		if len(bucket) > 0 {
			return minDate(bucket), true
		}
	}
	for _, bucket := range [][]time.Time{ownerPast, generalPast} {
		if len(bucket) > 0 {
			return maxDate(bucket), true
		}
	}
	if havePrevious {
		return previousDate, true
	}
	return time.Time{}, false
}

func minDate(dates []time.Time) time.Time {
	best := dates[0]
	for _, d := range dates[1:] {
		if d.Before(best) {
			best = d
		}
	}
	return best
}

func maxDate(dates []time.Time) time.Time {
	best := dates[0]
	for _, d := range dates[1:] {
		if d.After(best) {
			best = d
		}
	}
	return best
}
