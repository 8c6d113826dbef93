package normalize

import (
	"strings"

	"storedash/internal/lookup"

	"github.com/samber/lo"
	"github.com/tidwall/gjson"
)

type attribute struct {
	key   string
	value string
}

// attributeList keeps source order so color/size picking is deterministic.
type attributeList []attribute

// parseAttributes accepts an array of {name|key, value|title|label} pairs or a
// flat mapping. Keys are lowercased, values trimmed, and empty or non-scalar
// pairs dropped. A repeated key keeps its last value at its first position.
func parseAttributes(src gjson.Result) attributeList {
	var out attributeList
	add := func(key, value string) {
		key = lowerTrim(key)
		value = strings.TrimSpace(value)
		if key == "" || value == "" {
			return
		}
		if _, idx, ok := lo.FindIndexOf(out, func(a attribute) bool { return a.key == key }); ok {
			out[idx].value = value
			return
		}
		out = append(out, attribute{key: key, value: value})
	}

	switch {
	case src.IsArray():
		for _, a := range src.Array() {
			if !a.IsObject() {
				continue
			}
			key, _ := lookup.FirstString(a, "name", "key")
			value, _ := lookup.FirstString(a, "value", "title", "label")
			add(key, value)
		}
	case src.IsObject():
		src.ForEach(func(k, v gjson.Result) bool {
			if value, ok := lookup.String(v); ok {
				add(k.String(), value)
			}
			return true
		})
	}
	return out
}

// pick returns the value of the first attribute whose key equals or contains
// one of aliases.
func (l attributeList) pick(aliases []string) *string {
	for _, a := range l {
		if lo.SomeBy(aliases, func(alias string) bool { return strings.Contains(a.key, alias) }) {
			v := a.value
			return &v
		}
	}
	return nil
}

func (l attributeList) toMap() map[string]string {
	return lo.SliceToMap(l, func(a attribute) (string, string) { return a.key, a.value })
}
