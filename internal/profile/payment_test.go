package profile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tidwall/gjson"
)

func newTestService() *Service {
	return NewService(nil, nil, DefaultRules(), Settings{})
}

func TestExtractPaymentFromText(t *testing.T) {
	s := newTestService()

	tests := []struct {
		name string
		text string
		want string
	}{
		{"installment beats credit card", "信用卡分期 12期", "信用卡分期"},
		{"credit card", "刷信用卡付款", "信用卡"},
		{"bank transfer variant", "每月轉賬", "銀行轉帳"},
		{"auto debit", "銀行自動扣款", "自動扣款"},
		{"fullwidth parentheses", "月費1200（現金）", "現金"},
		{"parenthesized free text kept", "月費1200(其他方式)", "其他方式"},
		{"no match", "已通知客戶", ""},
		{"empty", "", ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, s.extractPaymentFromText(tc.text))
		})
	}
}

func TestLabelForPayway(t *testing.T) {
	s := newTestService()

	doc := gjson.Parse(`{"numeric": 99, "numericString": "5", "unknownCode": "42", "label": "現金", "empty": "", "nothing": null}`)

	assert.Equal(t, "信用卡分期", s.labelForPayway(doc.Get("numeric")))
	assert.Equal(t, "月費", s.labelForPayway(doc.Get("numericString")))
	assert.Equal(t, "42", s.labelForPayway(doc.Get("unknownCode")))
	assert.Equal(t, "現金", s.labelForPayway(doc.Get("label")))
	assert.Equal(t, "", s.labelForPayway(doc.Get("empty")))
	assert.Equal(t, "", s.labelForPayway(doc.Get("nothing")))
}

func TestDetectPaymentMethodPrefersFollowNotes(t *testing.T) {
	s := newTestService()

	detail := gjson.Parse(`{"paymentMethod": 2}`)
	followInfo := map[string]string{"付款方式": "信用卡"}

	assert.Equal(t, "信用卡", s.detectPaymentMethod(detail, followInfo))
}

func TestDetectPaymentMethodFallsBackToPaywayCode(t *testing.T) {
	s := newTestService()

	detail := gjson.Parse(`{"merchantAppliedDetail": {"payway": 90}}`)
	assert.Equal(t, "銀行轉帳", s.detectPaymentMethod(detail, map[string]string{}))
}

func TestDetectPaymentMethodEmpty(t *testing.T) {
	s := newTestService()
	assert.Equal(t, "", s.detectPaymentMethod(gjson.Parse(`{}`), map[string]string{"內容": "例行保養"}))
}
