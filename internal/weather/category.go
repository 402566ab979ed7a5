package weather

import (
	"fmt"
	"strings"
)

// Category identifies the kind of cached weather resource.
type Category string

const (
	CategoryCurrent Category = "CURRENT"
	CategoryHourly  Category = "HOURLY"
	CategoryDaily   Category = "DAILY"
)

// Categories returns every known category in a stable order.
func Categories() []Category {
	return []Category{CategoryCurrent, CategoryHourly, CategoryDaily}
}

// ParseCategory accepts "current", "hourly" or "daily" in any case.
func ParseCategory(s string) (Category, error) {
	switch c := Category(strings.ToUpper(strings.TrimSpace(s))); c {
	case CategoryCurrent, CategoryHourly, CategoryDaily:
		return c, nil
	default:
		return "", fmt.Errorf("unknown weather category %q", s)
	}
}

func (c Category) String() string {
	return string(c)
}

// Lower is the form used in URLs and metric labels.
func (c Category) Lower() string {
	return strings.ToLower(string(c))
}
