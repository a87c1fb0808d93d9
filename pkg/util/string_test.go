package util

import (
	"reflect"
	"testing"
	"unicode/utf8"
)

func TestParseTags(t *testing.T) {
	got := ParseTags(`["go", 'aws' , ,serverless]`)
	want := []string{"go", "aws", "serverless"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ParseTags() = %v, want %v", got, want)
	}
}

func TestNormalizeTags(t *testing.T) {
	tests := []struct {
		name     string
		tags     []string
		max      int
		expected []string
	}{
		{"dedupe case-insensitive", []string{"Go", "go", " AWS "}, 0, []string{"Go", "AWS"}},
		{"limit", []string{"a", "b", "c", "d", "e", "f"}, 5, []string{"a", "b", "c", "d", "e"}},
		{"empty", nil, 5, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeTags(tt.tags, tt.max); !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("NormalizeTags() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestHashtag(t *testing.T) {
	tests := []struct {
		tag      string
		expected string
	}{
		{"machine learning", "#MachineLearning"},
		{"go", "#Go"},
		{"c++", "#C"},
		{"!!!", ""},
	}

	for _, tt := range tests {
		t.Run(tt.tag, func(t *testing.T) {
			if got := Hashtag(tt.tag); got != tt.expected {
				t.Errorf("Hashtag(%q) = %q, want %q", tt.tag, got, tt.expected)
			}
		})
	}
}

func TestTruncateRunes(t *testing.T) {
	if got := TruncateRunes("short", 10); got != "short" {
		t.Errorf("TruncateRunes() = %q, want unchanged", got)
	}

	got := TruncateRunes("héllo wörld", 7)
	if utf8.RuneCountInString(got) > 7 {
		t.Errorf("TruncateRunes() = %q, longer than 7 runes", got)
	}
	if got != "héllo…" {
		t.Errorf("TruncateRunes() = %q, want %q", got, "héllo…")
	}
}
