package conversation

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	datePattern = regexp.MustCompile(`(jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)[a-z]* (\d+)(st|nd|rd|th)?`)
	timePattern = regexp.MustCompile(`(\d+)(?::(\d+))?\s*(am|pm)`)
)

var monthAbbrevs = map[string]time.Month{
	"jan": time.January, "feb": time.February, "mar": time.March,
	"apr": time.April, "may": time.May, "jun": time.June,
	"jul": time.July, "aug": time.August, "sep": time.September,
	"oct": time.October, "nov": time.November, "dec": time.December,
}

// ExtractDateTime pulls a datetime out of free text. It recognizes a
// three-letter month abbreviation plus day-of-month ("May 15th") and an
// hour[:minute] am/pm pattern ("3:30 pm") independently. A date already in
// the past rolls forward one year. The second return is false when neither
// pattern is present. This is a secondary utility; the confirm/reschedule
// path matches offered slots instead.
func ExtractDateTime(text string, now time.Time) (time.Time, bool) {
	text = strings.ToLower(text)

	dateMatch := datePattern.FindStringSubmatch(text)
	timeMatch := timePattern.FindStringSubmatch(text)

	if dateMatch == nil && timeMatch == nil {
		return time.Time{}, false
	}

	year := now.Year()
	month := now.Month()
	day := now.Day()
	hour := 9 // mornings by default
	minute := 0

	if dateMatch != nil {
		if m, ok := monthAbbrevs[dateMatch[1]]; ok {
			month = m
		}
		day, _ = strconv.Atoi(dateMatch[2])
	}

	if timeMatch != nil {
		hour, _ = strconv.Atoi(timeMatch[1])
		if timeMatch[2] != "" {
			minute, _ = strconv.Atoi(timeMatch[2])
		}
		switch timeMatch[3] {
		case "pm":
			if hour < 12 {
				hour += 12
			}
		case "am":
			if hour == 12 {
				hour = 0
			}
		}
	}

	if day < 1 || day > 31 || hour > 23 || minute > 59 {
		return time.Time{}, false
	}

	dt := time.Date(year, month, day, hour, minute, 0, 0, now.Location())
	if dt.Month() != month || dt.Day() != day {
		// Normalization moved the date (e.g. Feb 30), so the input named a
		// day that doesn't exist.
		return time.Time{}, false
	}

	if dt.Before(now) {
		if month < now.Month() || (month == now.Month() && day < now.Day()) {
			dt = time.Date(year+1, month, day, hour, minute, 0, 0, now.Location())
		}
	}

	return dt, true
}
