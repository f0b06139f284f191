package domain

import (
	"strings"

	"productmatch/internal/textnorm"
)

// Category is one of the fixed auto-part categories. The zero value is not a
// valid category.
type Category int

const (
	CategoryUnknown Category = iota
	CategoryBraking
	CategorySuspensionSteering
	CategoryEngine
	CategoryTransmissionClutch
	CategoryCoolingHeating
	CategoryElectricalSensors
	CategoryBodyInterior
	CategoryFuelEmissions
	CategoryExhaust
	CategoryMisc
)

var categoryLabels = [...]string{
	CategoryUnknown:            "Unknown",
	CategoryBraking:            "Sistem de frânare",
	CategorySuspensionSteering: "Suspensie și direcție",
	CategoryEngine:             "Componente motor",
	CategoryTransmissionClutch: "Transmisie și ambreiaj",
	CategoryCoolingHeating:     "Sistem de răcire și încălzire",
	CategoryElectricalSensors:  "Sistem electric și senzori",
	CategoryBodyInterior:       "Caroserie și interior",
	CategoryFuelEmissions:      "Sistem de combustibil și emisii",
	CategoryExhaust:            "Sistem de evacuare",
	CategoryMisc:               "Diverse",
}

var categoryByLabel = func() map[string]Category {
	m := make(map[string]Category, len(categoryLabels))
	for _, c := range Taxonomy() {
		m[categoryLabels[c]] = c
	}
	return m
}()

func (c Category) String() string {
	if c < 0 || int(c) >= len(categoryLabels) {
		return categoryLabels[CategoryUnknown]
	}
	return categoryLabels[c]
}

// Valid reports whether c is a member of the taxonomy.
func (c Category) Valid() bool {
	return c > CategoryUnknown && c <= CategoryMisc
}

// Taxonomy returns every valid category in declaration order.
func Taxonomy() []Category {
	out := make([]Category, 0, int(CategoryMisc))
	for c := CategoryBraking; c <= CategoryMisc; c++ {
		out = append(out, c)
	}
	return out
}

// ParseCategory returns the category whose label equals the trimmed label.
// Cedilla and decomposed spellings of the Romanian diacritics are accepted.
func ParseCategory(label string) (Category, bool) {
	c, ok := categoryByLabel[textnorm.Fold(strings.TrimSpace(label))]
	return c, ok
}

// Labels renders categories as their display labels, in order.
func Labels(cats []Category) []string {
	out := make([]string, len(cats))
	for i, c := range cats {
		out[i] = c.String()
	}
	return out
}
