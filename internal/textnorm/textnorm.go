// Package textnorm provides the accent-insensitive text matching and the
// abbreviation heuristics used to guess CloudFleet route codes from client
// and city names.
package textnorm

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// stripMarks decomposes to NFD, drops combining marks, recomposes.
var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Fold lowercases s and strips diacritics. Empty input folds to "".
func Fold(s string) string {
	if s == "" {
		return ""
	}
	out, _, err := transform.String(stripMarks, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(out)
}

// MatchCity reports whether candidate matches the city filter. The folded
// filter must be a substring of the folded candidate, or of the candidate
// with any parenthesized suffix stripped ("Bogotá (Distrito Capital)").
// An empty filter matches everything.
func MatchCity(filter, candidate string) bool {
	f := Fold(strings.TrimSpace(filter))
	if f == "" {
		return true
	}
	c := Fold(candidate)
	if strings.Contains(c, f) {
		return true
	}
	if i := strings.Index(c, "("); i >= 0 {
		if strings.Contains(strings.TrimSpace(c[:i]), f) {
			return true
		}
	}
	return false
}

// Vowels including their accented forms; input is upper-cased before filtering.
const vowels = "AEIOUÁÉÍÓÚÀÈÌÒÙÜ"

// Corporate suffixes that never carry route-code information.
var legalSuffixes = map[string]struct{}{
	"SA": {}, "SAS": {}, "LTDA": {}, "CIA": {}, "INC": {}, "LLC": {},
}

// abbrSource picks the token abbreviation candidates are derived from: the
// last whitespace token that is not a legal-entity suffix ("CCM Chilco S.A."
// abbreviates "CHILCO", not "S.A.").
func abbrSource(text string) string {
	fields := strings.Fields(text)
	for i := len(fields) - 1; i >= 0; i-- {
		var letters []rune
		for _, r := range strings.ToUpper(fields[i]) {
			if unicode.IsLetter(r) {
				letters = append(letters, r)
			}
		}
		if len(letters) == 0 {
			continue
		}
		if _, ok := legalSuffixes[string(letters)]; ok {
			continue
		}
		return fields[i]
	}
	return ""
}

// LooksCorporate reports whether a name looks like a company record rather
// than a person, by carrying a legal-entity suffix ("TRANSPORTES DEL VALLE
// S.A.S."). CloudFleet's people collection mixes both.
func LooksCorporate(name string) bool {
	for _, f := range strings.Fields(name) {
		var letters []rune
		for _, r := range strings.ToUpper(f) {
			if unicode.IsLetter(r) {
				letters = append(letters, r)
			}
		}
		if _, ok := legalSuffixes[string(letters)]; ok {
			return true
		}
	}
	return false
}

// AbbrCandidates produces up to two upper-case abbreviation candidates of at
// most n characters: first the consonant-only prefix, then the plain
// alphabetic prefix. Candidates are deduplicated, consonant-first.
func AbbrCandidates(text string, n int) []string {
	if n <= 0 {
		n = 3
	}
	src := abbrSource(text)
	if src == "" {
		return nil
	}

	var cons, plain []rune
	for _, r := range strings.ToUpper(src) {
		if !unicode.IsLetter(r) {
			continue
		}
		if len(plain) < n {
			plain = append(plain, r)
		}
		if !strings.ContainsRune(vowels, r) && len(cons) < n {
			cons = append(cons, r)
		}
		if len(plain) >= n && len(cons) >= n {
			break
		}
	}

	var out []string
	if len(cons) > 0 {
		out = append(out, string(cons))
	}
	if p := string(plain); p != "" && (len(out) == 0 || p != out[0]) {
		out = append(out, p)
	}
	return out
}

// RouteCodeCandidates synthesizes probable route codes for a client/city pair.
// An explicit code short-circuits to a single-element result. Otherwise the
// cross product of client and city abbreviation candidates is formatted as
// CLIENT-CITY-VAR (or CITY-VAR with no client), deduplicated, order preserved.
func RouteCodeCandidates(clientName, city, explicitCode string) []string {
	if code := strings.TrimSpace(explicitCode); code != "" {
		return []string{code}
	}

	clientAbbrs := AbbrCandidates(clientName, 3)
	cityAbbrs := AbbrCandidates(city, 3)

	seen := make(map[string]struct{})
	var out []string
	add := func(code string) {
		if _, ok := seen[code]; ok {
			return
		}
		seen[code] = struct{}{}
		out = append(out, code)
	}

	switch {
	case len(clientAbbrs) == 0:
		for _, ca := range cityAbbrs {
			add(ca + "-VAR")
		}
	case len(cityAbbrs) == 0:
		for _, cl := range clientAbbrs {
			add(cl + "-VAR")
		}
	default:
		for _, cl := range clientAbbrs {
			for _, ca := range cityAbbrs {
				add(cl + "-" + ca + "-VAR")
			}
		}
	}
	return out
}
