package task

import (
	"encoding/json"
	"testing"
	"time"
)

func datePtr(y int, m time.Month, d int) *Date {
	v := NewDate(y, m, d)
	return &v
}

func TestClassify(t *testing.T) {
	today := NewDate(2024, time.June, 15)
	cases := []struct {
		name  string
		due   *Date
		want  Bucket
		label string
	}{
		{"same day", datePtr(2024, time.June, 15), BucketToday, "Today"},
		{"next day", datePtr(2024, time.June, 16), BucketTomorrow, "Tomorrow"},
		{"past", datePtr(2024, time.June, 10), BucketOverdue, "Overdue"},
		{"future", datePtr(2024, time.July, 1), BucketFuture, "Jul 1"},
		{"next year keeps no year", datePtr(2025, time.January, 3), BucketFuture, "Jan 3"},
		{"no due date", nil, BucketNone, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Classify(tc.due, today); got != tc.want {
				t.Fatalf("Classify = %v, want %v", got, tc.want)
			}
			info := Describe(tc.due, today)
			if info.Bucket != tc.want || info.Label != tc.label {
				t.Fatalf("Describe = %+v, want %v/%q", info, tc.want, tc.label)
			}
		})
	}
}

func TestClassifyAcrossMonthBoundary(t *testing.T) {
	today := NewDate(2024, time.June, 30)
	if got := Classify(datePtr(2024, time.July, 1), today); got != BucketTomorrow {
		t.Fatalf("expected tomorrow across month boundary, got %v", got)
	}
}

func TestDateOfIgnoresTimeOfDay(t *testing.T) {
	loc := time.FixedZone("UTC+9", 9*60*60)
	late := time.Date(2024, time.June, 15, 23, 59, 0, 0, loc)
	if got := DateOf(late); !got.Equal(NewDate(2024, time.June, 15)) {
		t.Fatalf("DateOf = %s", got)
	}
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate(" 2024-06-15 ")
	if err != nil {
		t.Fatalf("ParseDate: %v", err)
	}
	if d.String() != "2024-06-15" {
		t.Fatalf("unexpected date %s", d)
	}
	if _, err := ParseDate("15/06/2024"); err == nil {
		t.Fatalf("expected error for malformed date")
	}
}

func TestTaskJSONDueDate(t *testing.T) {
	in := Task{ID: "t1", Title: "x", Priority: PriorityLow, DueDate: datePtr(2024, time.June, 15)}
	data, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out Task
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.DueDate == nil || !out.DueDate.Equal(*in.DueDate) {
		t.Fatalf("due date lost: %s", data)
	}

	var none Task
	if err := json.Unmarshal([]byte(`{"id":"t2","dueDate":null}`), &none); err != nil {
		t.Fatalf("unmarshal null: %v", err)
	}
	if none.DueDate != nil {
		t.Fatalf("expected nil due date, got %v", none.DueDate)
	}
}
