// Package quota holds the static per-client/per-site daily trip quotas the
// planning UI falls back on. The matrix lives in an embedded YAML file so
// operations can review it without reading Go.
package quota

import (
	_ "embed"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
)

//go:embed matrix.yaml
var matrixYAML []byte

type rule struct {
	Cliente string `yaml:"cliente"`
	Sede    string `yaml:"sede"`
	Cupos   [7]int `yaml:"cupos"` // Monday..Sunday
}

type matrix struct {
	Rules []rule `yaml:"rules"`
}

// rules preserves file order; the fuzzy scan depends on it.
var rules []rule

func init() {
	var m matrix
	if err := yaml.Unmarshal(matrixYAML, &m); err != nil {
		log.Fatal("Failed to parse quota matrix: ", err)
	}
	rules = m.Rules
}

func lookup(cliente, sede string) ([7]int, bool) {
	for _, r := range rules {
		if r.Cliente == cliente && r.Sede == sede {
			return r.Cupos, true
		}
	}
	return [7]int{}, false
}

// ForDate returns the suggested quota for a client, site and YYYY-MM-DD date.
// Resolution order: exact match, then the PRAXAIR->LINDE alias rewrite, then a
// bidirectional-containment scan ("CCM LINDE SAS" matches "CCM LINDE").
// No rule or an unparseable date yields 0, which the UI treats as "manual".
func ForDate(cliente, sede, fecha string) int {
	dt, err := time.Parse("2006-01-02", fecha)
	if err != nil {
		return 0
	}
	day := (int(dt.Weekday()) + 6) % 7 // Monday = 0

	c := strings.ToUpper(strings.TrimSpace(cliente))
	s := strings.ToUpper(strings.TrimSpace(sede))

	cupos, ok := lookup(c, s)
	if !ok && strings.Contains(c, "PRAXAIR") {
		cupos, ok = lookup(strings.ReplaceAll(c, "PRAXAIR", "LINDE"), s)
	}
	if !ok {
		for _, r := range rules {
			matchC := strings.Contains(c, r.Cliente) || strings.Contains(r.Cliente, c)
			matchS := strings.Contains(s, r.Sede) || strings.Contains(r.Sede, s)
			if matchC && matchS {
				cupos, ok = r.Cupos, true
				break
			}
		}
	}
	if !ok {
		return 0
	}
	return cupos[day]
}

// ExpectedSites lists the site names configured for a client, sorted. The
// containment check is deliberately unidirectional: the API name must contain
// the matrix key ("CCM LINDE SAS" contains "CCM LINDE"); short names like
// "CHILCO" are covered by explicit alias rows instead.
func ExpectedSites(cliente string) []string {
	if cliente == "" {
		return nil
	}
	c := strings.ToUpper(strings.TrimSpace(cliente))

	set := make(map[string]struct{})
	for _, r := range rules {
		if strings.Contains(c, r.Cliente) {
			set[r.Sede] = struct{}{}
		}
	}

	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
