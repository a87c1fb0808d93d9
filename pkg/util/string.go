package util

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// ParseTags parses tag strings into arrays
func ParseTags(tagStr string) []string {
	if tagStr == "" {
		return []string{}
	}

	// Remove brackets if present
	tagStr = strings.Trim(tagStr, "[]")

	tags := strings.Split(tagStr, ",")
	var cleanTags []string

	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		tag = strings.Trim(tag, "\"'") // Remove quotes
		if tag != "" {
			cleanTags = append(cleanTags, tag)
		}
	}

	return cleanTags
}

// NormalizeTags trims, drops empty and case-insensitive duplicate tags, and keeps at most max
// of them (max <= 0 keeps all).
func NormalizeTags(tags []string, max int) []string {
	seen := make(map[string]bool, len(tags))
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" || seen[strings.ToLower(tag)] {
			continue
		}
		seen[strings.ToLower(tag)] = true
		out = append(out, tag)
		if max > 0 && len(out) == max {
			break
		}
	}
	return out
}

// Hashtag turns a tag into a #CamelCase hashtag, or "" when nothing usable remains.
func Hashtag(tag string) string {
	var b strings.Builder
	upper := true
	for _, r := range tag {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			upper = true
			continue
		}
		if upper {
			r = unicode.ToUpper(r)
			upper = false
		}
		b.WriteRune(r)
	}
	if b.Len() == 0 {
		return ""
	}
	return "#" + b.String()
}

// TruncateRunes shortens s to at most limit runes, ending with an ellipsis when cut.
func TruncateRunes(s string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	if limit == 1 {
		return "…"
	}
	runes := []rune(s)
	return strings.TrimRightFunc(string(runes[:limit-1]), unicode.IsSpace) + "…"
}
