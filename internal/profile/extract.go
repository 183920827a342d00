package profile

import (
	"strings"

	"github.com/tidwall/gjson"
)

// cleanText renders a gateway value as display text. Localized objects
// resolve to the first populated translation; null, empty and zero values
// become "".
func cleanText(value gjson.Result) string {
	if !value.Exists() || value.Type == gjson.Null {
		return ""
	}
	if value.IsObject() {
		for _, locale := range []string{"zh_TW", "zh_CN", "en_US"} {
			if text := strings.TrimSpace(value.Get(locale).String()); text != "" {
				return text
			}
		}
		return ""
	}
	if value.IsArray() {
		return ""
	}
	if value.Type == gjson.Number && value.Float() == 0 {
		return ""
	}
	return strings.TrimSpace(value.String())
}

// getPath walks a dotted key path through nested objects. Keys are plain map
// keys, so gateway field names with punctuation (e.g. "headDef!define9")
// never collide with query syntax.
func getPath(source gjson.Result, path string) gjson.Result {
	current := source
	for _, part := range strings.Split(path, ".") {
		if !current.IsObject() {
			return gjson.Result{}
		}
		next, ok := current.Map()[part]
		if !ok {
			return gjson.Result{}
		}
		current = next
	}
	return current
}

// fieldText resolves a key on a record, treating dotted keys as nested paths.
func fieldText(source gjson.Result, key string) string {
	if strings.Contains(key, ".") {
		return cleanText(getPath(source, key))
	}
	if !source.IsObject() {
		return ""
	}
	return cleanText(source.Map()[key])
}

// collectSources flattens a set of documents into every object they contain
// so lookups can match a key at any nesting depth. Later documents are
// visited first and take precedence.
func collectSources(items ...gjson.Result) []gjson.Result {
	var sources []gjson.Result
	stack := append(make([]gjson.Result, 0, len(items)), items...)
	for len(stack) > 0 {
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if !current.IsObject() {
			continue
		}
		sources = append(sources, current)
		current.ForEach(func(_, value gjson.Result) bool {
			if value.IsObject() {
				stack = append(stack, value)
			} else if value.IsArray() {
				for _, entry := range value.Array() {
					if entry.IsObject() {
						stack = append(stack, entry)
					}
				}
			}
			return true
		})
	}
	return sources
}

// extractValue returns the first non-empty text for any of the keys across
// the flattened sources. Keys are tried in order so earlier keys win across
// all sources.
func extractValue(sources []gjson.Result, keys ...string) string {
	for _, key := range keys {
		if key == "" {
			continue
		}
		for _, src := range sources {
			var value gjson.Result
			if strings.Contains(key, ".") {
				value = getPath(src, key)
			} else {
				value = src.Map()[key]
			}
			if text := cleanText(value); text != "" {
				return text
			}
		}
	}
	return ""
}

// firstNonEmpty returns the first non-blank string.
func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
