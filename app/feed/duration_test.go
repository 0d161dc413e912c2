package feed

import (
	"testing"
	"time"
)

func TestParseDuration(t *testing.T) {
	tests := []struct {
		input string
		want  time.Duration
		ok    bool
	}{
		{"1:02:03", time.Hour + 2*time.Minute + 3*time.Second, true},
		{"45:10", 45*time.Minute + 10*time.Second, true},
		{"754", 754 * time.Second, true},
		{"754.9", 754 * time.Second, true},
		{" 00:05:00 ", 5 * time.Minute, true},
		{"0:59.5", 59 * time.Second, true},
		{"", 0, false},
		{"abc", 0, false},
		{"1:2:3:4", 0, false},
		{"-5", 0, false},
		{"1::3", 0, false},
		{"1:-2", 0, false},
		{"NaN", 0, false},
		{"Inf", 0, false},
		{"-Inf", 0, false},
		{"1e12", 0, false},
		{"99999999999999999:00:00", 0, false},
		{"9223372036854775807", 0, false},
		{"1e3", 1000 * time.Second, true},
		{"2562047:47:16", 2562047*time.Hour + 47*time.Minute + 16*time.Second, true},
	}

	for _, tt := range tests {
		got, ok := ParseDuration(tt.input)
		if ok != tt.ok {
			t.Errorf("ParseDuration(%q) ok = %v, want %v", tt.input, ok, tt.ok)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseDuration(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		input time.Duration
		want  string
	}{
		{0, ""},
		{-time.Second, ""},
		{9 * time.Second, "0:09"},
		{12*time.Minute + 34*time.Second, "12:34"},
		{time.Hour, "1:00:00"},
		{time.Hour + 2*time.Minute + 3*time.Second, "1:02:03"},
		{25*time.Hour + 500*time.Millisecond, "25:00:00"},
	}

	for _, tt := range tests {
		if got := FormatDuration(tt.input); got != tt.want {
			t.Errorf("FormatDuration(%v) = %q, want %q", tt.input, got, tt.want)
		}
	}
}
