package profile

import (
	"regexp"
	"strings"
	"unicode"
)

// QueryKind classifies what the caller typed into the lookup box.
type QueryKind int

const (
	KindName QueryKind = iota
	KindPhone
	KindCode
)

func (k QueryKind) String() string {
	switch k {
	case KindPhone:
		return "phone"
	case KindCode:
		return "code"
	default:
		return "name"
	}
}

// codeTokenRE matches a bare customer code such as "C115".
var codeTokenRE = regexp.MustCompile(`(?i)\bC\d{2,}\b`)

// classifyQuery decides whether an identifier looks like a phone number, a
// customer code, or a customer name. Phone wins over code so that numeric
// identifiers with dialing punctuation search contact fields first.
func classifyQuery(identifier string) QueryKind {
	switch {
	case looksLikePhone(identifier):
		return KindPhone
	case looksLikeCustomerCode(identifier):
		return KindCode
	default:
		return KindName
	}
}

// looksLikePhone reports whether text is mostly dialable: at least six
// digits, no CJK characters, and at most three characters outside the
// digit/+/-/space/# set.
func looksLikePhone(text string) bool {
	digits := 0
	other := 0
	for _, ch := range text {
		switch {
		case unicode.Is(unicode.Han, ch):
			return false
		case ch >= '0' && ch <= '9':
			digits++
		case ch == '+' || ch == '-' || ch == ' ' || ch == '#':
		default:
			other++
		}
	}
	return digits >= 6 && other <= 3
}

// looksLikeCustomerCode reports whether text is a customer code: a C-prefixed
// numeric token, a pure number, or a letter-led alphanumeric identifier.
func looksLikeCustomerCode(text string) bool {
	cleaned := strings.TrimSpace(text)
	if cleaned == "" {
		return false
	}
	upper := strings.ToUpper(cleaned)
	if token := codeTokenRE.FindString(upper); token == upper {
		return true
	}

	var normalized []rune
	for _, ch := range upper {
		if ch == ' ' || ch == '\t' || ch == '-' || ch == '_' {
			continue
		}
		normalized = append(normalized, ch)
	}
	if len(normalized) == 0 {
		return false
	}

	hasDigit := false
	allDigit := true
	allAlnum := true
	for _, ch := range normalized {
		isDigit := ch >= '0' && ch <= '9'
		if isDigit {
			hasDigit = true
		} else {
			allDigit = false
		}
		if !isDigit && !unicode.IsLetter(ch) {
			allAlnum = false
		}
	}
	if !hasDigit {
		return false
	}
	if allDigit {
		return true
	}
	return unicode.IsLetter(normalized[0]) && allAlnum
}

func hasAlpha(text string) bool {
	for _, ch := range text {
		if unicode.IsLetter(ch) {
			return true
		}
	}
	return false
}
