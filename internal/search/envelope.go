package search

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// page is one decoded items page before normalization.
type page struct {
	items []map[string]any
	meta  map[string]any
}

// decodePage accepts every observed response envelope:
//
//	{"data": {"items": [...], ...pagination}}
//	{"items": [...], ...pagination}
//	{"data": [...]}
//	[...]
func decodePage(body []byte) (page, error) {
	var bare []map[string]any
	if err := json.Unmarshal(body, &bare); err == nil {
		return page{items: bare}, nil
	}

	var obj map[string]any
	if err := json.Unmarshal(body, &obj); err != nil {
		return page{}, fmt.Errorf("unrecognized items response shape: %w", err)
	}

	if data, ok := obj["data"]; ok {
		switch t := data.(type) {
		case []any:
			return page{items: itemMaps(t)}, nil
		case map[string]any:
			if items, ok := t["items"].([]any); ok {
				return page{items: itemMaps(items), meta: t}, nil
			}
			// A data object without items is a single record.
			return page{items: []map[string]any{t}}, nil
		}
	}

	if items, ok := obj["items"].([]any); ok {
		return page{items: itemMaps(items), meta: obj}, nil
	}

	// A plain object is a single record (item-by-id responses).
	return page{items: []map[string]any{obj}}, nil
}

func itemMaps(list []any) []map[string]any {
	out := make([]map[string]any, 0, len(list))
	for _, v := range list {
		if m, ok := v.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}

// decodeMeta reads pagination metadata out of the envelope. hasNext and
// totalPages are taken from the server when present; otherwise hasNext falls
// back to the returned-count heuristic and the page is marked inferred.
func decodeMeta(p page, reqPage, reqSize, returned int) Meta {
	m := Meta{Page: reqPage, Size: reqSize}

	if v, ok := numberField(p.meta, "totalPages", "total_pages"); ok {
		m.TotalPages = int(v)
	}
	if v, ok := boolField(p.meta, "hasNext", "has_next"); ok {
		m.HasNext = v
		return m
	}
	if m.TotalPages > 0 {
		m.HasNext = reqPage+1 < m.TotalPages
		return m
	}

	m.HasNext = reqSize > 0 && returned == reqSize
	m.HasNextInferred = true
	return m
}

// numberField coerces string-typed numerics the way item fields do, so meta
// like {"totalPages": "3"} still counts as server pagination.
func numberField(m map[string]any, keys ...string) (float64, bool) {
	for _, k := range keys {
		switch v := m[k].(type) {
		case float64:
			return v, true
		case string:
			if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
				return f, true
			}
		}
	}
	return 0, false
}

func boolField(m map[string]any, keys ...string) (bool, bool) {
	for _, k := range keys {
		if v, ok := m[k].(bool); ok {
			return v, true
		}
	}
	return false, false
}
