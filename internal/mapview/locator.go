package mapview

import (
	"context"
	"errors"
)

// Position is a device-reported coordinate.
type Position struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Locator acquires the viewer's position. highAccuracy asks for the precise
// (slower) source; implementations should honor the context deadline.
type Locator interface {
	Locate(ctx context.Context, highAccuracy bool) (Position, error)
}

// Locator error classes. PermissionDenied is terminal; Unavailable and a
// deadline overrun earn one relaxed retry.
var (
	ErrPermissionDenied = errors.New("locator: permission denied")
	ErrUnavailable      = errors.New("locator: position unavailable")
)
