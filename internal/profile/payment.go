package profile

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

var parenthesizedRE = regexp.MustCompile(`\(([^)]+)\)`)

// detectPaymentMethod derives the payment-method label from the follow-up
// notes first, then from the structured payway codes on the customer detail.
func (s *Service) detectPaymentMethod(detail gjson.Result, followInfo map[string]string) string {
	candidates := []string{
		followInfo["付款方式"],
		followInfo["付費方式"],
		followInfo["目前付費方式"],
		followInfo["月費"],
		followInfo["金額"],
		followInfo[rawFollowKey],
	}
	for key, value := range followInfo {
		if key == rawFollowKey {
			continue
		}
		candidates = append(candidates, value)
	}

	for _, text := range candidates {
		if label := s.extractPaymentFromText(text); label != "" {
			return label
		}
	}

	merchantDetail := getPath(detail, "merchantAppliedDetail")
	for _, source := range []gjson.Result{
		getPath(detail, "paymentMethod"),
		getPath(detail, "payway"),
		getPath(merchantDetail, "paymentMethod"),
		getPath(merchantDetail, "payway"),
	} {
		if label := s.labelForPayway(source); label != "" {
			return label
		}
	}

	return ""
}

// labelForPayway maps a structured payway value to its label. Numeric values
// go through the code table; unknown codes fall back to the raw text.
func (s *Service) labelForPayway(value gjson.Result) string {
	if !value.Exists() || value.Type == gjson.Null {
		return ""
	}
	if value.Type == gjson.String {
		text := strings.TrimSpace(value.String())
		if text == "" {
			return ""
		}
		if code, err := strconv.Atoi(text); err == nil {
			if label, ok := s.rules.Payment.CodeLabels[code]; ok {
				return label
			}
			return text
		}
		return text
	}
	if value.Type == gjson.Number {
		code := int(value.Int())
		if label, ok := s.rules.Payment.CodeLabels[code]; ok {
			return label
		}
		return strconv.Itoa(code)
	}
	return ""
}

// extractPaymentFromText scans free text for a payment keyword. Text inside
// parentheses is tried as a last resort, keeping whatever was written there
// when no keyword matches.
func (s *Service) extractPaymentFromText(text string) string {
	normalized := strings.TrimSpace(text)
	if normalized == "" {
		return ""
	}
	normalized = strings.NewReplacer("（", "(", "）", ")").Replace(normalized)

	for _, kw := range s.rules.Payment.Keywords {
		if strings.Contains(normalized, kw.Contains) {
			return kw.Label
		}
	}

	if m := parenthesizedRE.FindStringSubmatch(normalized); m != nil {
		inner := strings.TrimSpace(m[1])
		if inner != "" {
			for _, kw := range s.rules.Payment.Keywords {
				if strings.Contains(inner, kw.Contains) {
					return kw.Label
				}
			}
			return inner
		}
	}
	return ""
}
