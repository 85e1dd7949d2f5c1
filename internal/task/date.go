package task

import (
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

// Date is a calendar date with no time of day.
type Date struct {
	t time.Time
}

func NewDate(year int, month time.Month, day int) Date {
	return Date{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf returns the calendar date of t in t's own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return NewDate(y, m, d)
}

func ParseDate(v string) (Date, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(v))
	if err != nil {
		return Date{}, err
	}
	return DateOf(t), nil
}

func (d Date) IsZero() bool { return d.t.IsZero() }

func (d Date) Equal(o Date) bool { return d.t.Equal(o.t) }

func (d Date) Before(o Date) bool { return d.t.Before(o.t) }

func (d Date) After(o Date) bool { return d.t.After(o.t) }

func (d Date) AddDays(n int) Date { return Date{t: d.t.AddDate(0, 0, n)} }

// Time returns midnight UTC of the date.
func (d Date) Time() time.Time { return d.t }

func (d Date) Format(layout string) string { return d.t.Format(layout) }

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.t.Format(dateLayout)
}

func (d Date) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Date) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

type Bucket int

const (
	BucketNone Bucket = iota
	BucketToday
	BucketTomorrow
	BucketOverdue
	BucketFuture
)

func (b Bucket) String() string {
	switch b {
	case BucketToday:
		return "today"
	case BucketTomorrow:
		return "tomorrow"
	case BucketOverdue:
		return "overdue"
	case BucketFuture:
		return "future"
	default:
		return "none"
	}
}

// Classify places a due date relative to today. The checks run in order
// Today, Tomorrow, Overdue, Future.
func Classify(due *Date, today Date) Bucket {
	if due == nil || due.IsZero() {
		return BucketNone
	}
	switch {
	case due.Equal(today):
		return BucketToday
	case due.Equal(today.AddDays(1)):
		return BucketTomorrow
	case due.Before(today):
		return BucketOverdue
	default:
		return BucketFuture
	}
}

type DateInfo struct {
	Bucket Bucket `json:"bucket"`
	Label  string `json:"label"`
}

func (b Bucket) MarshalText() ([]byte, error) {
	return []byte(b.String()), nil
}

// Describe returns the badge shown next to a task. Future dates render as
// abbreviated month and day without a year.
func Describe(due *Date, today Date) DateInfo {
	b := Classify(due, today)
	switch b {
	case BucketToday:
		return DateInfo{Bucket: b, Label: "Today"}
	case BucketTomorrow:
		return DateInfo{Bucket: b, Label: "Tomorrow"}
	case BucketOverdue:
		return DateInfo{Bucket: b, Label: "Overdue"}
	case BucketFuture:
		return DateInfo{Bucket: b, Label: due.Format("Jan 2")}
	default:
		return DateInfo{}
	}
}
