package graph

import (
	"sort"
	"strings"
)

func sortStrings(s []string) { sort.Strings(s) }

// StatusFingerprint returns the stall-detection fingerprint: sorted
// "id:status" pairs joined with "|". It is a function of node statuses only
// and is stable regardless of map iteration order.
func StatusFingerprint(g *Graph) string {
	pairs := make([]string, 0, len(g.Nodes))
	for id, n := range g.Nodes {
		pairs = append(pairs, id+":"+string(n.Status))
	}
	sort.Strings(pairs)
	return strings.Join(pairs, "|")
}
