package analysis

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	moneyPattern   = regexp.MustCompile(`(?i)(?:R\$|US\$|\$|€|£|\bUSD|\bEUR|\bBRL)\s?\d+(?:[.,]\d{3})*(?:[.,]\d{1,2})?`)
	datePattern    = regexp.MustCompile(`\b(\d{1,2})/(\d{1,2})/(\d{4})\b|\b(\d{4})-(\d{2})-(\d{2})\b`)
	percentPattern = regexp.MustCompile(`(\d+(?:[.,]\d+)?)\s?%`)
)

func valuePattern(t ValueType) *regexp.Regexp {
	switch t {
	case ValueMoney:
		return moneyPattern
	case ValueDate:
		return datePattern
	default:
		return percentPattern
	}
}

// normalizeValue maps a raw value match to a canonical form so equal amounts written
// differently compare equal. It returns "" when the value cannot be interpreted.
func normalizeValue(t ValueType, raw string) string {
	switch t {
	case ValueMoney:
		digits := strings.TrimLeftFunc(raw, func(r rune) bool { return !unicode.IsDigit(r) })
		n, ok := parseNumber(digits)
		if !ok {
			return ""
		}
		return strconv.FormatFloat(n, 'f', 2, 64)
	case ValueDate:
		m := datePattern.FindStringSubmatch(raw)
		if m == nil {
			return ""
		}
		if m[1] != "" {
			day, _ := strconv.Atoi(m[1])
			month, _ := strconv.Atoi(m[2])
			if day < 1 || day > 31 || month < 1 || month > 12 {
				return ""
			}
			return fmt.Sprintf("%s-%02d-%02d", m[3], month, day)
		}
		return fmt.Sprintf("%s-%s-%s", m[4], m[5], m[6])
	default:
		m := percentPattern.FindStringSubmatch(raw)
		if m == nil {
			return ""
		}
		n, ok := parseNumber(m[1])
		if !ok {
			return ""
		}
		return strconv.FormatFloat(n, 'f', -1, 64)
	}
}

// parseNumber reads numbers written with either "." or "," as the decimal separator.
// A lone separator followed by exactly three digits is read as a thousands separator.
func parseNumber(raw string) (float64, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, false
	}
	lastDot := strings.LastIndex(s, ".")
	lastComma := strings.LastIndex(s, ",")

	switch {
	case lastDot >= 0 && lastComma >= 0:
		if lastComma > lastDot {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case lastComma >= 0:
		s = normalizeSingleSeparator(s, ",")
	case lastDot >= 0:
		s = normalizeSingleSeparator(s, ".")
	}

	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

func normalizeSingleSeparator(s, sep string) string {
	last := strings.LastIndex(s, sep)
	if strings.Count(s, sep) > 1 || len(s)-last-1 == 3 {
		return strings.ReplaceAll(s, sep, "")
	}
	return strings.Replace(s, sep, ".", 1)
}

func firstRune(s string) rune {
	r, _ := utf8.DecodeRuneInString(s)
	return r
}

func isWordRune(r rune) bool {
	return r == '_' || (r < utf8.RuneSelf && (unicode.IsLetter(r) || unicode.IsDigit(r)))
}
