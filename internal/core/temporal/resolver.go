// Package temporal resolves Korean and English date expressions to absolute
// dates. Relative expressions are always anchored at a record's publication
// time so that re-extraction of old records is deterministic.
package temporal

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
)

// Resolution is a successfully resolved date. Absolute expressions resolve
// with high confidence, relative ones with medium.
type Resolution struct {
	Date       time.Time
	Confidence Confidence
}

var (
	reISODate     = regexp.MustCompile(`(\d{4})[-/](\d{1,2})[-/](\d{1,2})`)
	reMonthDay    = regexp.MustCompile(`(\d{1,2})[-/](\d{1,2})`)
	reKoreanDate  = regexp.MustCompile(`(\d{1,2})월\s*(\d{1,2})일`)
	reEnglishDate = regexp.MustCompile(`(?i)(jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)[a-z]*\.?\s*(\d{1,2})`)

	reClockTime  = regexp.MustCompile(`(\d{1,2}):(\d{2})`)
	reKoreanTime = regexp.MustCompile(`(\d{1,2})시\s*(?:(\d{1,2})분?)?`)

	reNextWeekday    = regexp.MustCompile(`다음\s*주\s*(월|화|수|목|금|토|일)요일`)
	reNextEngWeekday = regexp.MustCompile(`(?i)next\s+(mon|tues?|wed(?:nes)?|thur?s?|fri|sat(?:ur)?|sun)(?:day)?\b`)
	reWeekday     = regexp.MustCompile(`(월|화|수|목|금|토|일)요일`)
	reEngWeekday  = regexp.MustCompile(`(?i)\b(mon|tues?|wed(?:nes)?|thur?s?|fri|sat(?:ur)?|sun)(?:day)?\b`)
	reDaysAfter   = regexp.MustCompile(`(\d+)\s*일\s*후`)
	reInDays      = regexp.MustCompile(`(?i)in\s+(\d+)\s+days?`)
	reWeeksAfter  = regexp.MustCompile(`(\d+)\s*주\s*후`)
	reInWeeks     = regexp.MustCompile(`(?i)in\s+(\d+)\s+weeks?`)
	reNextWeek    = regexp.MustCompile(`(?i)다음\s*주|next\s*week`)
	reTomorrow    = regexp.MustCompile(`(?i)내일|tomorrow`)
	reDayAfter    = regexp.MustCompile(`(?i)모레|day\s+after\s+tomorrow`)
)

var koreanWeekdays = map[string]time.Weekday{
	"월": time.Monday, "화": time.Tuesday, "수": time.Wednesday,
	"목": time.Thursday, "금": time.Friday, "토": time.Saturday, "일": time.Sunday,
}

var englishWeekdays = map[string]time.Weekday{
	"mon": time.Monday, "tue": time.Tuesday, "wed": time.Wednesday,
	"thu": time.Thursday, "fri": time.Friday, "sat": time.Saturday, "sun": time.Sunday,
}

var englishMonths = map[string]time.Month{
	"jan": time.January, "feb": time.February, "mar": time.March,
	"apr": time.April, "may": time.May, "jun": time.June,
	"jul": time.July, "aug": time.August, "sep": time.September,
	"oct": time.October, "nov": time.November, "dec": time.December,
}

// Resolve extracts a date from expression anchored at anchor. The boolean
// reports whether any interpretable date phrase was found; false means
// "no due date", not failure. Absolute forms win over relative ones.
func Resolve(expression string, anchor time.Time) (Resolution, bool) {
	if strings.TrimSpace(expression) == "" {
		return Resolution{}, false
	}

	if date, ok := resolveAbsolute(expression, anchor); ok {
		return Resolution{Date: withTimeOfDay(date, expression), Confidence: ConfidenceHigh}, true
	}
	if date, ok := resolveRelative(expression, anchor); ok {
		return Resolution{Date: withTimeOfDay(date, expression), Confidence: ConfidenceMedium}, true
	}
	return Resolution{}, false
}

func resolveAbsolute(text string, anchor time.Time) (time.Time, bool) {
	if m := reISODate.FindStringSubmatch(text); m != nil {
		year, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		day, _ := strconv.Atoi(m[3])
		return makeDate(year, month, day, anchor)
	}
	if m := reKoreanDate.FindStringSubmatch(text); m != nil {
		month, _ := strconv.Atoi(m[1])
		day, _ := strconv.Atoi(m[2])
		return makeDate(0, month, day, anchor)
	}
	if m := reEnglishDate.FindStringSubmatch(text); m != nil {
		month, ok := englishMonths[strings.ToLower(m[1])[:3]]
		if !ok {
			return time.Time{}, false
		}
		day, _ := strconv.Atoi(m[2])
		return makeDate(0, int(month), day, anchor)
	}
	if m := reMonthDay.FindStringSubmatch(text); m != nil {
		month, _ := strconv.Atoi(m[1])
		day, _ := strconv.Atoi(m[2])
		return makeDate(0, month, day, anchor)
	}
	return time.Time{}, false
}

// makeDate validates calendar components. A missing year defaults to the
// anchor's year, rolling into the next year when the month already passed
// relative to the anchor (announcements point forward).
func makeDate(year, month, day int, anchor time.Time) (time.Time, bool) {
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, false
	}
	if year == 0 {
		year = anchor.Year()
		if time.Month(month) < anchor.Month() {
			year++
		}
	}
	date := time.Date(year, time.Month(month), day, 0, 0, 0, 0, anchor.Location())
	if date.Day() != day || date.Month() != time.Month(month) {
		return time.Time{}, false
	}
	return date, true
}

func resolveRelative(text string, anchor time.Time) (time.Time, bool) {
	day := truncateToDay(anchor)

	if m := reNextWeekday.FindStringSubmatch(text); m != nil {
		return weekdayInFollowingWeek(day, koreanWeekdays[m[1]]), true
	}
	if m := reNextEngWeekday.FindStringSubmatch(text); m != nil {
		if wd, ok := englishWeekdays[strings.ToLower(m[1])[:3]]; ok {
			return weekdayInFollowingWeek(day, wd), true
		}
	}
	if m := reDaysAfter.FindStringSubmatch(text); m != nil {
		n, _ := strconv.Atoi(m[1])
		return day.AddDate(0, 0, n), true
	}
	if m := reInDays.FindStringSubmatch(text); m != nil {
		n, _ := strconv.Atoi(m[1])
		return day.AddDate(0, 0, n), true
	}
	if m := reWeeksAfter.FindStringSubmatch(text); m != nil {
		n, _ := strconv.Atoi(m[1])
		return day.AddDate(0, 0, 7*n), true
	}
	if m := reInWeeks.FindStringSubmatch(text); m != nil {
		n, _ := strconv.Atoi(m[1])
		return day.AddDate(0, 0, 7*n), true
	}
	if reDayAfter.MatchString(text) {
		return day.AddDate(0, 0, 2), true
	}
	if reTomorrow.MatchString(text) {
		return day.AddDate(0, 0, 1), true
	}
	if m := reWeekday.FindStringSubmatch(text); m != nil {
		return nextWeekday(day, koreanWeekdays[m[1]]), true
	}
	if m := reEngWeekday.FindStringSubmatch(text); m != nil {
		wd, ok := englishWeekdays[strings.ToLower(m[1])[:3]]
		if !ok {
			return time.Time{}, false
		}
		return nextWeekday(day, wd), true
	}
	if reNextWeek.MatchString(text) {
		return day.AddDate(0, 0, 7), true
	}
	return time.Time{}, false
}

// nextWeekday returns the closest strictly-future occurrence of wd.
func nextWeekday(anchor time.Time, wd time.Weekday) time.Time {
	ahead := (int(wd) - int(anchor.Weekday()) + 7) % 7
	if ahead == 0 {
		ahead = 7
	}
	return anchor.AddDate(0, 0, ahead)
}

// weekdayInFollowingWeek returns wd inside the calendar week after the
// anchor's week (weeks starting Monday), so "다음 주 금요일" on a Monday is
// eleven days out, not four.
func weekdayInFollowingWeek(anchor time.Time, wd time.Weekday) time.Time {
	sinceMonday := (int(anchor.Weekday()) - int(time.Monday) + 7) % 7
	nextMonday := anchor.AddDate(0, 0, 7-sinceMonday)
	offset := (int(wd) - int(time.Monday) + 7) % 7
	return nextMonday.AddDate(0, 0, offset)
}

func withTimeOfDay(date time.Time, text string) time.Time {
	if m := reClockTime.FindStringSubmatch(text); m != nil {
		hour, _ := strconv.Atoi(m[1])
		minute, _ := strconv.Atoi(m[2])
		if hour < 24 && minute < 60 {
			return date.Add(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute)
		}
	}
	if m := reKoreanTime.FindStringSubmatch(text); m != nil {
		hour, _ := strconv.Atoi(m[1])
		minute := 0
		if m[2] != "" {
			minute, _ = strconv.Atoi(m[2])
		}
		if hour < 24 && minute < 60 {
			return date.Add(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute)
		}
	}
	return date
}

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
