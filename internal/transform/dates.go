package transform

import (
	"time"

	"github.com/jomei/notionapi"
)

// DateValue keeps a date property's range structure.
type DateValue struct {
	Start string `json:"start"`
	End   string `json:"end,omitempty"`

	// TimeZone is the UTC offset of Start, set only for values with a time.
	TimeZone string `json:"time_zone,omitempty"`
}

// FormatDate renders a Notion date. Notion returns date-only values as
// midnight, which format as YYYY-MM-DD; everything else is RFC 3339.
func FormatDate(d *notionapi.Date) string {
	if d == nil {
		return ""
	}
	t := time.Time(*d)
	if isDateOnly(t) {
		return t.Format(time.DateOnly)
	}
	return t.Format(time.RFC3339)
}

// NewDateValue converts a date object, returning nil when it has no start.
func NewDateValue(obj *notionapi.DateObject) *DateValue {
	if obj == nil || obj.Start == nil {
		return nil
	}

	v := &DateValue{Start: FormatDate(obj.Start)}
	if obj.End != nil {
		v.End = FormatDate(obj.End)
	}
	if start := time.Time(*obj.Start); !isDateOnly(start) {
		v.TimeZone = start.Format("-07:00")
	}
	return v
}

func isDateOnly(t time.Time) bool {
	return t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0
}
