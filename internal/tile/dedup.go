package tile

import (
	"log/slog"
	"regexp"
	"strings"
)

var timestampPattern = regexp.MustCompile(`\d{8}T\d{6}`)

// DedupAcquisitions keeps one tile per acquisition for products that publish
// both near-real-time (NR) and non-time-critical (NT) versions. Tiles are
// bucketed by their id minus the final processing timestamp; per bucket the
// NT tile with the latest processing timestamp wins, else the latest NR tile.
// Buckets with neither are dropped. Output preserves input order.
func DedupAcquisitions(tiles []Descriptor, logger *slog.Logger) []Descriptor {
	if logger == nil {
		logger = slog.Default()
	}

	buckets := make(map[string][]int)
	var order []string
	for i, t := range tiles {
		base := baseID(t.ID, logger)
		if _, ok := buckets[base]; !ok {
			order = append(order, base)
		}
		buckets[base] = append(buckets[base], i)
	}

	keep := make(map[int]bool)
	for _, base := range order {
		idx := buckets[base]
		if best, ok := latest(tiles, idx, "_NT_"); ok {
			keep[best] = true
		} else if best, ok := latest(tiles, idx, "_NR_"); ok {
			keep[best] = true
		}
	}

	out := make([]Descriptor, 0, len(keep))
	for i, t := range tiles {
		if keep[i] {
			out = append(out, t)
		}
	}
	return out
}

func latest(tiles []Descriptor, idx []int, timeliness string) (int, bool) {
	best, found := -1, false
	var bestTS string
	for _, i := range idx {
		id := tiles[i].ID
		if !strings.Contains(id, timeliness) {
			continue
		}
		ts := lastTimestamp(id)
		if !found || ts > bestTS {
			best, bestTS, found = i, ts, true
		}
	}
	return best, found
}

func lastTimestamp(id string) string {
	ts := timestampPattern.FindAllString(id, -1)
	if len(ts) == 0 {
		return ""
	}
	return ts[len(ts)-1]
}

func baseID(id string, logger *slog.Logger) string {
	ts := timestampPattern.FindAllString(id, -1)
	if len(ts) < 3 {
		logger.Warn("Item ID '" + id + "' does not contain 3 timestamp. No filtering applied for this item.")
		return id
	}
	if i := strings.LastIndex(id, "_"+ts[len(ts)-1]); i >= 0 {
		return id[:i]
	}
	return id
}
