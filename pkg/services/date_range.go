package services

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"agriviewer-chat-api/pkg/models"
)

// maxRangeDays はモックデータ生成の上限日数
const maxRangeDays = 366

var (
	relativeRangePattern = regexp.MustCompile(`(?i)\b(?:last|past|previous)\s+(\d+\s+)?(day|week|month|year)s?\b`)
	explicitRangePattern = regexp.MustCompile(`(\d{4}-\d{2}-\d{2})\s*(?:to|through|until|-|–|~)\s*(\d{4}-\d{2}-\d{2})`)
	singleDatePattern    = regexp.MustCompile(`\d{4}-\d{2}-\d{2}`)
)

// ParseDateRange は "last 30 days" や "2024-01-01 to 2024-02-01" 形式の期間を解釈します。
// 解釈できない場合はnowまでの30日間を返します。
func ParseDateRange(dateRange string, now time.Time) (time.Time, time.Time) {
	today := truncateDay(now)
	s := strings.TrimSpace(dateRange)

	if m := explicitRangePattern.FindStringSubmatch(s); m != nil {
		start, err1 := time.Parse(models.DateLayout, m[1])
		end, err2 := time.Parse(models.DateLayout, m[2])
		if err1 == nil && err2 == nil {
			if end.Before(start) {
				start, end = end, start
			}
			return clampRange(start, end)
		}
	}

	if m := relativeRangePattern.FindStringSubmatch(s); m != nil {
		n := 1
		if v := strings.TrimSpace(m[1]); v != "" {
			if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
				n = parsed
			}
		}
		// 乗算やAddDateで桁あふれしないよう先に上限で抑える
		if n > maxRangeDays {
			n = maxRangeDays
		}
		var start time.Time
		switch strings.ToLower(m[2]) {
		case "day":
			start = today.AddDate(0, 0, -(n - 1))
		case "week":
			start = today.AddDate(0, 0, -(7*n - 1))
		case "month":
			start = today.AddDate(0, -n, 1)
		case "year":
			start = today.AddDate(-n, 0, 1)
		}
		return clampRange(start, today)
	}

	if m := singleDatePattern.FindString(s); m != "" {
		if d, err := time.Parse(models.DateLayout, m); err == nil {
			return d, d
		}
	}

	return today.AddDate(0, 0, -29), today
}

// ExtendDateRange は期間を同じ長さだけ過去に延長した範囲を返します。
func ExtendDateRange(dateRange string, now time.Time) string {
	start, end := ParseDateRange(dateRange, now)
	span := int(end.Sub(start).Hours()/24) + 1
	newStart := start.AddDate(0, 0, -span)
	return newStart.Format(models.DateLayout) + " to " + end.Format(models.DateLayout)
}

// DaysBetween は両端を含む日数を返します。
func DaysBetween(start, end time.Time) int {
	return int(truncateDay(end).Sub(truncateDay(start)).Hours()/24) + 1
}

func clampRange(start, end time.Time) (time.Time, time.Time) {
	if start.After(end) {
		start, end = end, start
	}
	if DaysBetween(start, end) > maxRangeDays {
		start = end.AddDate(0, 0, -(maxRangeDays - 1))
	}
	return start, end
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
