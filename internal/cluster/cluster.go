// Package cluster projects located items onto the map: nearby markers merge
// into clusters by screen-space proximity at a given zoom level.
package cluster

import (
	"math"
	"sort"

	"sharif_lostfound/map-core/internal/search"
)

const (
	// Radius is the merge distance in screen pixels. Two markers closer
	// than this at the current zoom render as one cluster.
	Radius = 50.0

	tileSize = 256.0

	// unknownColor renders categories absent from the directory.
	unknownColor = "#6b7280"
)

// Marker is a single located item on the map.
type Marker struct {
	ItemID   string  `json:"itemId"`
	Name     string  `json:"name"`
	Category string  `json:"category"`
	Color    string  `json:"color"`
	Lat      float64 `json:"lat"`
	Lng      float64 `json:"lng"`
}

// Slice is one category's share of a cluster.
type Slice struct {
	Category string `json:"category"`
	Color    string `json:"color"`
	Count    int    `json:"count"`
}

// Cluster is a group of markers merged at the current zoom. Lat/Lng is the
// mean position of the members.
type Cluster struct {
	Count  int     `json:"count"`
	Lat    float64 `json:"lat"`
	Lng    float64 `json:"lng"`
	Slices []Slice `json:"slices"`
}

// Result is the clustered projection for one zoom level.
type Result struct {
	Markers  []Marker  `json:"markers"`
	Clusters []Cluster `json:"clusters"`
}

// Build groups the located items by pixel distance at the given zoom. Items
// without coordinates are skipped; a group of one stays a marker. colors maps
// category slugs to display colors.
func Build(items []search.Item, zoom float64, colors map[string]string) Result {
	type point struct {
		marker Marker
		px, py float64
	}

	pts := make([]point, 0, len(items))
	for _, it := range items {
		if !it.HasLocation() {
			continue
		}
		lat, lng := *it.X, *it.Y
		px, py := project(lat, lng, zoom)
		color, ok := colors[it.Category]
		if !ok {
			color = unknownColor
		}
		pts = append(pts, point{
			marker: Marker{
				ItemID:   it.ID,
				Name:     it.Name,
				Category: it.Category,
				Color:    color,
				Lat:      lat,
				Lng:      lng,
			},
			px: px,
			py: py,
		})
	}

	res := Result{Markers: []Marker{}, Clusters: []Cluster{}}
	used := make([]bool, len(pts))
	for i := range pts {
		if used[i] {
			continue
		}
		used[i] = true
		group := []int{i}
		for j := i + 1; j < len(pts); j++ {
			if used[j] {
				continue
			}
			dx := pts[i].px - pts[j].px
			dy := pts[i].py - pts[j].py
			if math.Hypot(dx, dy) <= Radius {
				used[j] = true
				group = append(group, j)
			}
		}

		if len(group) == 1 {
			res.Markers = append(res.Markers, pts[i].marker)
			continue
		}

		var sumLat, sumLng float64
		counts := map[string]int{}
		for _, idx := range group {
			m := pts[idx].marker
			sumLat += m.Lat
			sumLng += m.Lng
			counts[m.Category]++
		}
		slices := make([]Slice, 0, len(counts))
		for _, idx := range group {
			m := pts[idx].marker
			if counts[m.Category] == 0 {
				continue
			}
			slices = append(slices, Slice{Category: m.Category, Color: m.Color, Count: counts[m.Category]})
			counts[m.Category] = 0
		}
		sort.Slice(slices, func(a, b int) bool {
			if slices[a].Count != slices[b].Count {
				return slices[a].Count > slices[b].Count
			}
			return slices[a].Category < slices[b].Category
		})
		n := float64(len(group))
		res.Clusters = append(res.Clusters, Cluster{
			Count:  len(group),
			Lat:    sumLat / n,
			Lng:    sumLng / n,
			Slices: slices,
		})
	}
	return res
}

// project maps a coordinate to Web Mercator world pixels at the given zoom.
func project(lat, lng, zoom float64) (x, y float64) {
	world := tileSize * math.Exp2(zoom)
	x = (lng + 180) / 360 * world
	sin := math.Sin(lat * math.Pi / 180)
	y = (0.5 - math.Log((1+sin)/(1-sin))/(4*math.Pi)) * world
	return x, y
}
