package profile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tidwall/gjson"
)

func TestCleanText(t *testing.T) {
	doc := gjson.Parse(`{
		"plain": "  hello  ",
		"localized": {"zh_TW": "台北", "en_US": "Taipei"},
		"fallbackLocale": {"en_US": "Taipei"},
		"zero": 0,
		"number": 42,
		"nothing": null,
		"list": ["a"]
	}`)

	assert.Equal(t, "hello", cleanText(doc.Get("plain")))
	assert.Equal(t, "台北", cleanText(doc.Get("localized")))
	assert.Equal(t, "Taipei", cleanText(doc.Get("fallbackLocale")))
	assert.Equal(t, "", cleanText(doc.Get("zero")))
	assert.Equal(t, "42", cleanText(doc.Get("number")))
	assert.Equal(t, "", cleanText(doc.Get("nothing")))
	assert.Equal(t, "", cleanText(doc.Get("list")))
	assert.Equal(t, "", cleanText(doc.Get("missing")))
}

func TestGetPathHandlesPunctuatedKeys(t *testing.T) {
	doc := gjson.Parse(`{"headDef!define9": "plan-a", "nested": {"customer.code": "x", "inner": {"value": "deep"}}}`)

	// Keys containing gjson metacharacters resolve as plain map keys.
	assert.Equal(t, "plan-a", getPath(doc, "headDef!define9").String())
	assert.Equal(t, "deep", getPath(doc, "nested.inner.value").String())
	assert.False(t, getPath(doc, "nested.missing.value").Exists())
}

func TestExtractValueKeyOrderWinsAcrossSources(t *testing.T) {
	record := gjson.Parse(`{"paymentWay": "from-record"}`)
	detail := gjson.Parse(`{"paymentMethod": "from-detail", "child": {"rentAmount": "990"}}`)

	sources := collectSources(record, detail)

	// Earlier key wins even when a later source holds it.
	assert.Equal(t, "from-detail", extractValue(sources, "paymentMethod", "paymentWay"))
	assert.Equal(t, "from-record", extractValue(sources, "paymentWay", "paymentMethod"))
	// Nested objects are searched too.
	assert.Equal(t, "990", extractValue(sources, "rentAmount"))
	assert.Equal(t, "", extractValue(sources, "missing"))
}

func TestCollectSourcesLaterDocumentsTakePrecedence(t *testing.T) {
	record := gjson.Parse(`{"name": "record"}`)
	detail := gjson.Parse(`{"name": "detail"}`)

	sources := collectSources(record, detail)
	assert.Equal(t, "detail", extractValue(sources, "name"))
}

func TestFieldTextNestedPath(t *testing.T) {
	doc := gjson.Parse(`{"customer": {"code": "c115", "name": {"zh_TW": "王小明"}}}`)
	assert.Equal(t, "c115", fieldText(doc, "customer.code"))
	assert.Equal(t, "王小明", fieldText(doc, "customer.name"))
	assert.Equal(t, "", fieldText(doc, "customer.phone"))
}
