package datamodel

import (
	"reflect"
	"strings"
	"unicode"
)

// Description is the human-facing metadata attached to a property, dynamic child or node.
type Description struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Prefix      string `json:"prefix,omitempty"`
	Affix       string `json:"affix,omitempty"`
	// ResetsDepth restarts the depth count of visualizers below this entry.
	ResetsDepth bool `json:"resets_depth,omitempty"`
}

// withDefaultName fills in the humanized identifier when no name was given.
func (d Description) withDefaultName(identifier string) Description {
	if d.Name == "" {
		d.Name = Humanize(identifier)
	}
	return d
}

// describeField builds a Description from the datamodel and description struct tags.
//
//	Speed float64 `datamodel:"name=Current speed,affix=km/h" description:"Vehicle speed"`
func describeField(f reflect.StructField) Description {
	d := Description{Description: f.Tag.Get("description")}
	for _, opt := range strings.Split(f.Tag.Get("datamodel"), ",") {
		key, value, _ := strings.Cut(strings.TrimSpace(opt), "=")
		switch key {
		case "name":
			d.Name = value
		case "prefix":
			d.Prefix = value
		case "affix":
			d.Affix = value
		case "resetsdepth":
			d.ResetsDepth = true
		}
	}
	return d.withDefaultName(f.Name)
}

// Humanize turns an identifier such as "CurrentSpeedKPH" or "tyre_temp" into a
// sentence-cased display name ("Current speed KPH", "Tyre temp").
func Humanize(identifier string) string {
	runes := []rune(identifier)
	var words []string
	var cur []rune
	flush := func() {
		if len(cur) > 0 {
			words = append(words, string(cur))
			cur = cur[:0]
		}
	}
	for i, r := range runes {
		switch {
		case r == '_' || r == '-' || unicode.IsSpace(r):
			flush()
			continue
		case unicode.IsUpper(r) && len(cur) > 0:
			prevLower := unicode.IsLower(runes[i-1]) || unicode.IsDigit(runes[i-1])
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if prevLower || (unicode.IsUpper(runes[i-1]) && nextLower) {
				flush()
			}
		}
		cur = append(cur, r)
	}
	flush()

	for i, w := range words {
		if isAcronym(w) {
			continue
		}
		if i == 0 {
			words[i] = string(unicode.ToUpper([]rune(w)[0])) + strings.ToLower(string([]rune(w)[1:]))
			continue
		}
		words[i] = strings.ToLower(w)
	}
	return strings.Join(words, " ")
}

func isAcronym(w string) bool {
	if len([]rune(w)) < 2 {
		return false
	}
	for _, r := range w {
		if !unicode.IsUpper(r) && !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
