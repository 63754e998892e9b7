// Package sortname turns display names into library "file-as" forms.
package sortname

import (
	"strings"
)

// honorifics are dropped from the front of a name.
var honorifics = wordSet("dr", "mr", "mrs", "ms", "prof", "rev", "sir", "dame")

// postnominals are kept after the given names ("King, Martin Luther, Jr.").
var postnominals = wordSet("jr", "sr", "junior", "senior", "ii", "iii", "iv")

// credentials are dropped from the end of a name.
var credentials = wordSet("phd", "ph.d", "md", "m.d", "dds", "esq", "mba")

func wordSet(words ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}

func in(set map[string]struct{}, word string) bool {
	word = strings.ToLower(strings.TrimRight(word, ".,"))
	_, ok := set[word]
	return ok
}

// FileAs returns name in surname-first order. Single-word names and names
// that already contain a comma are returned trimmed but otherwise unchanged.
//
//	"Stephen King"          -> "King, Stephen"
//	"Martin Luther King Jr." -> "King, Martin Luther, Jr."
//	"Ludwig van Beethoven"  -> "Beethoven, Ludwig van"
func FileAs(name string) string {
	name = strings.Join(strings.Fields(name), " ")
	if name == "" || strings.Contains(name, ",") {
		return name
	}

	parts := strings.Fields(name)
	for len(parts) > 1 && in(honorifics, parts[0]) {
		parts = parts[1:]
	}

	var suffixes []string
	for len(parts) > 1 {
		last := parts[len(parts)-1]
		if in(postnominals, last) {
			suffixes = append([]string{last}, suffixes...)
		} else if !in(credentials, last) {
			break
		}
		parts = parts[:len(parts)-1]
	}

	if len(parts) == 1 {
		return strings.Join(append(parts, suffixes...), ", ")
	}

	out := parts[len(parts)-1] + ", " + strings.Join(parts[:len(parts)-1], " ")
	if len(suffixes) > 0 {
		out += ", " + strings.Join(suffixes, ", ")
	}
	return out
}
