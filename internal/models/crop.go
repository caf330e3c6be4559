// Package models provides data model definitions for the Kuapa offline core.
package models

import "fmt"

// CropType is the crop category a capture was labelled with.
type CropType string

const (
	CropCocoa    CropType = "cocoa"
	CropCassava  CropType = "cassava"
	CropMaize    CropType = "maize"
	CropPlantain CropType = "plantain"
	CropRice     CropType = "rice"
	CropTomato   CropType = "tomato"
	CropPepper   CropType = "pepper"
	CropOther    CropType = "other"
)

// CropTypes lists every crop category in display order.
var CropTypes = []CropType{
	CropCocoa, CropCassava, CropMaize, CropPlantain,
	CropRice, CropTomato, CropPepper, CropOther,
}

var cropLabels = map[CropType]string{
	CropCocoa:    "Cocoa",
	CropCassava:  "Cassava",
	CropMaize:    "Maize",
	CropPlantain: "Plantain",
	CropRice:     "Rice",
	CropTomato:   "Tomato",
	CropPepper:   "Pepper",
	CropOther:    "Other",
}

// Valid reports whether c is one of the fixed crop categories.
func (c CropType) Valid() bool {
	_, ok := cropLabels[c]
	return ok
}

// Label returns the display label.
func (c CropType) Label() string {
	if label, ok := cropLabels[c]; ok {
		return label
	}
	return string(c)
}

// ParseCropType validates a raw crop string.
func ParseCropType(s string) (CropType, error) {
	c := CropType(s)
	if !c.Valid() {
		return "", fmt.Errorf("unknown crop type %q", s)
	}
	return c, nil
}
