// Package parking defines the core domain entities of the lot: spots, their
// categories and the driven vehicle.
// This package is PURE and must NOT import any infrastructure packages.
package parking

// Category is the closed set of spot kinds.
type Category string

const (
	CategoryStandard   Category = "standard"
	CategoryCompact    Category = "compact"
	CategoryAccessible Category = "accessible"
	CategoryEV         Category = "ev"      // electric charging bay
	CategoryPremium    Category = "premium" // reserved-premium bay
)

// CategoryDefinition provides metadata about a category.
type CategoryDefinition struct {
	Label      string
	HourlyRate float64 // currency units per hour, charged on reservation
}

// Registry contains every known category and its properties.
var Registry = map[Category]CategoryDefinition{
	CategoryStandard: {
		Label:      "Standard",
		HourlyRate: 2.5,
	},
	CategoryCompact: {
		Label:      "Compact",
		HourlyRate: 2.0,
	},
	CategoryAccessible: {
		Label:      "Accessible",
		HourlyRate: 1.5,
	},
	CategoryEV: {
		Label:      "EV charging",
		HourlyRate: 4.0,
	},
	CategoryPremium: {
		Label:      "Premium",
		HourlyRate: 6.0,
	},
}

// Categories lists the categories in display order.
func Categories() []Category {
	return []Category{CategoryStandard, CategoryCompact, CategoryAccessible, CategoryEV, CategoryPremium}
}

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	_, ok := Registry[c]
	return ok
}

// HourlyRate returns the reservation price per hour, 0 for unknown categories.
func (c Category) HourlyRate() float64 {
	return Registry[c].HourlyRate
}
