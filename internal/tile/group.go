package tile

import (
	"log/slog"
	"sort"
	"time"
)

// DayFormat is the layout of solar-day keys.
const DayFormat = "2006-01-02"

// Key identifies a mosaic group.
type Key struct {
	Day  time.Time
	Zone string
}

// String formats the key as "<day>/<zone>".
func (k Key) String() string {
	return k.Day.Format(DayFormat) + "/" + k.Zone
}

// Group is a set of tiles sharing a solar day and native zone, in priority
// order.
type Group struct {
	Key   Key
	Tiles []Descriptor
}

// IDs returns the tile ids in priority order.
func (g Group) IDs() []string {
	ids := make([]string, len(g.Tiles))
	for i, t := range g.Tiles {
		ids[i] = t.ID
	}
	return ids
}

// GroupTiles buckets tiles by (solar day, native CRS) and sorts each bucket by
// (time, id). Groups are returned ordered by day, then zone. A tile repeating
// the (time, id) of an earlier one is dropped with a warning.
func GroupTiles(tiles []Descriptor, logger *slog.Logger) []Group {
	if logger == nil {
		logger = slog.Default()
	}

	buckets := make(map[Key][]Descriptor)
	for _, t := range tiles {
		k := Key{Day: t.Day, Zone: t.CRS.Code}
		buckets[k] = append(buckets[k], t)
	}

	groups := make([]Group, 0, len(buckets))
	for k, members := range buckets {
		sort.SliceStable(members, func(i, j int) bool { return Less(members[i], members[j]) })
		members = dropDuplicates(members, logger)
		groups = append(groups, Group{Key: k, Tiles: members})
	}

	sort.Slice(groups, func(i, j int) bool {
		a, b := groups[i].Key, groups[j].Key
		if !a.Day.Equal(b.Day) {
			return a.Day.Before(b.Day)
		}
		return a.Zone < b.Zone
	})
	return groups
}

func dropDuplicates(sorted []Descriptor, logger *slog.Logger) []Descriptor {
	out := sorted[:0:0]
	for i, t := range sorted {
		if i > 0 && t.ID == sorted[i-1].ID && t.Time.Equal(sorted[i-1].Time) {
			logger.Warn("dropping duplicate tile",
				slog.String("tile_id", t.ID),
				slog.Time("time", t.Time),
			)
			continue
		}
		out = append(out, t)
	}
	return out
}

// Day is every tile of one solar day across all zones, in priority order.
type Day struct {
	Day   time.Time
	Zones []string
	Tiles []Descriptor

	// FirstAcquisition is the earliest tile time of the day.
	FirstAcquisition time.Time
}

// Days merges groups sharing a solar day. Groups must be ordered as returned
// by GroupTiles.
func Days(groups []Group) []Day {
	var days []Day
	for _, g := range groups {
		if n := len(days); n == 0 || !days[n-1].Day.Equal(g.Key.Day) {
			days = append(days, Day{Day: g.Key.Day})
		}
		d := &days[len(days)-1]
		d.Zones = append(d.Zones, g.Key.Zone)
		d.Tiles = append(d.Tiles, g.Tiles...)
	}
	for i := range days {
		tiles := days[i].Tiles
		sort.SliceStable(tiles, func(a, b int) bool { return Less(tiles[a], tiles[b]) })
		if len(tiles) > 0 {
			days[i].FirstAcquisition = tiles[0].Time
		}
	}
	return days
}
