package domain

import (
	"errors"
	"strings"
)

// CounselCategory classifies a completed analysis. The AI collaborator may
// return either the enum name or the human-readable Korean description;
// ParseCategory accepts both, case-insensitively.
type CounselCategory string

const (
	CategoryConsultation CounselCategory = "CONSULTATION"
	CategoryRoaming      CounselCategory = "ROAMING"
	CategoryBilling      CounselCategory = "BILLING"
	CategoryService      CounselCategory = "SERVICE"
)

// ErrUnknownCategory is returned by ParseCategory when the value maps to no
// known category.
var ErrUnknownCategory = errors.New("unknown counsel category")

// categoryDescriptions maps each category to the display description the AI
// prompt uses.
var categoryDescriptions = map[CounselCategory]string{
	CategoryConsultation: "상담",
	CategoryRoaming:      "로밍",
	CategoryBilling:      "요금 및 납부",
	CategoryService:      "서비스",
}

// Description returns the human-readable description for the category, or
// the empty string for an unknown value.
func (c CounselCategory) Description() string {
	return categoryDescriptions[c]
}

// Valid reports whether c is one of the known categories.
func (c CounselCategory) Valid() bool {
	_, ok := categoryDescriptions[c]
	return ok
}

// ParseCategory resolves a raw value against the known categories by exact or
// case-insensitive match on either the name or the description. It returns
// ErrUnknownCategory when nothing matches.
func ParseCategory(value string) (CounselCategory, error) {
	v := strings.TrimSpace(value)
	if v == "" {
		return "", ErrUnknownCategory
	}
	for c, desc := range categoryDescriptions {
		if strings.EqualFold(string(c), v) || strings.EqualFold(desc, v) {
			return c, nil
		}
	}
	return "", ErrUnknownCategory
}
