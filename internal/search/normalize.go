package search

import (
	"strconv"
	"strings"
	"time"

	"sharif_lostfound/map-core/internal/category"
)

// Field alias chains, highest priority first. The backend has shipped several
// record shapes; every alias below has been observed in the wild.
var (
	latitudeAliases  = []string{"location.latitude", "latitude", "x", "lat"}
	longitudeAliases = []string{"location.longitude", "longitude", "y", "lng"}
	nameAliases      = []string{"itemName", "name", "title"}
	labelAliases     = []string{"categoryName", "category_name", "categoryLabel"}
	categoryIDAlias  = []string{"categoryId", "category_id", "category.id"}
	reporterAliases  = []string{"applicant.email", "reporter.email", "relatedProfile"}
	reporterIDAlias  = []string{"reporterId", "reporter_id", "reporter.id", "applicant.id"}
	createdAtAliases = []string{"reportedAt", "createdAt", "created_at", "timestamp"}
)

// Normalize maps one raw backend record to the canonical Item shape. It never
// fails: missing fields default to safe placeholders and malformed values are
// dropped rather than propagated.
func Normalize(raw map[string]any, now time.Time) Item {
	r := record(raw)

	x := r.number(latitudeAliases...)
	y := r.number(longitudeAliases...)
	if x == nil || y == nil {
		// A single-sided pair is no location at all.
		x, y = nil, nil
	}

	name := r.str(nameAliases...)
	if name == "" {
		name = "—"
	}

	label := r.str(labelAliases...)
	slug := "other"
	if label != "" {
		slug = category.Slug(label)
	} else {
		label = "—"
	}

	itemType := strings.ToUpper(r.str("type"))
	if itemType != "FOUND" {
		itemType = "LOST"
	}

	status := strings.ToUpper(r.str("status"))
	if status == "" {
		status = "ACTIVE"
	}

	createdAt := r.str(createdAtAliases...)
	if createdAt == "" {
		createdAt = now.UTC().Format(time.RFC3339)
	}

	var image *string
	if s := r.str("image"); s != "" {
		image = &s
	}

	return Item{
		ID:             r.str("id"),
		Name:           name,
		CategoryID:     r.integer(categoryIDAlias...),
		Category:       slug,
		CategoryLabel:  label,
		Type:           itemType,
		Status:         status,
		X:              x,
		Y:              y,
		CreatedAt:      createdAt,
		RelatedProfile: r.str(reporterAliases...),
		ReporterID:     r.str(reporterIDAlias...),
		Image:          image,
		Raw:            raw,
	}
}

// record walks dotted paths through nested maps and coerces the leaf values.
type record map[string]any

func (r record) lookup(path string) (any, bool) {
	var cur any = map[string]any(r)
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, cur != nil
}

// str returns the first alias that resolves to a non-empty string. Numeric
// leaves are rendered, so ids arriving as JSON numbers still come out usable.
func (r record) str(paths ...string) string {
	for _, p := range paths {
		v, ok := r.lookup(p)
		if !ok {
			continue
		}
		switch t := v.(type) {
		case string:
			if s := strings.TrimSpace(t); s != "" {
				return s
			}
		case float64:
			return strconv.FormatFloat(t, 'f', -1, 64)
		case int64:
			return strconv.FormatInt(t, 10)
		}
	}
	return ""
}

// number returns the first alias that resolves to a finite number, coercing
// string-typed numerics.
func (r record) number(paths ...string) *float64 {
	for _, p := range paths {
		v, ok := r.lookup(p)
		if !ok {
			continue
		}
		switch t := v.(type) {
		case float64:
			f := t
			return &f
		case string:
			if f, err := strconv.ParseFloat(strings.TrimSpace(t), 64); err == nil {
				return &f
			}
		}
	}
	return nil
}

func (r record) integer(paths ...string) *int64 {
	f := r.number(paths...)
	if f == nil {
		return nil
	}
	n := int64(*f)
	return &n
}
