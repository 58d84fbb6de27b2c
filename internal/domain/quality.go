package domain

import (
	"sort"
	"strconv"
	"strings"
)

// QualityRank orders quality labels, lower is better.
//
// Le fallback numérique (1000 - N) est un héritage volontairement conservé:
// il peut mal classer des labels exotiques ("1" sort après "999").
func QualityRank(label string) int {
	q := strings.ToLower(label)
	if strings.Contains(q, "4k") || strings.Contains(q, "2160") {
		return 1
	}
	if strings.Contains(q, "1080") {
		return 2
	}
	if strings.Contains(q, "720") {
		return 3
	}
	if n, err := strconv.Atoi(strings.TrimSpace(q)); err == nil {
		return 1000 - n
	}
	return 1000
}

// SortQualities orders tiers by rank, best first. The sort is stable so
// equally-ranked tiers keep the resolver's response order.
func SortQualities(col SourceCollection) SourceCollection {
	out := make(SourceCollection, 0, len(col))
	for _, tier := range col {
		if len(tier.Sources) > 0 {
			out = append(out, tier)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return QualityRank(out[i].Quality) < QualityRank(out[j].Quality)
	})
	return out
}

// DefaultSource picks the first candidate of the best non-empty tier.
func DefaultSource(col SourceCollection) (SourceRef, bool) {
	ranked := SortQualities(col)
	if len(ranked) == 0 {
		return SourceRef{}, false
	}
	src := ranked[0].Sources[0]
	src.Quality = ranked[0].Quality
	return src, true
}
