package chat

import (
	"testing"
	"time"
)

func TestFormatChatTime(t *testing.T) {
	loc := time.UTC
	now := time.Date(2024, 5, 10, 15, 30, 0, 0, loc)

	tests := []struct {
		name string
		at   time.Time
		want string
	}{
		{"today", time.Date(2024, 5, 10, 9, 5, 0, 0, loc), "9:05 AM"},
		{"today afternoon", time.Date(2024, 5, 10, 15, 4, 0, 0, loc), "3:04 PM"},
		{"yesterday", time.Date(2024, 5, 9, 23, 59, 0, 0, loc), "Yesterday"},
		{"same year", time.Date(2024, 1, 2, 8, 0, 0, 0, loc), "Jan 2"},
		{"older", time.Date(2023, 12, 31, 8, 0, 0, 0, loc), "Dec 31, 2023"},
		{"zero", time.Time{}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatChatTime(tt.at, now); got != tt.want {
				t.Errorf("FormatChatTime() = %q, want %q", got, tt.want)
			}
		})
	}
}
