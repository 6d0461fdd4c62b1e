// Package ui renders view models in the terminal.
package ui

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/text"

	"consentwallet/internal/domain"
	"consentwallet/internal/icon"
)

// Variant is the visual variant of a button or info box.
type Variant int

const (
	VariantPrimary Variant = iota
	VariantSecondary
	VariantSupplementary
	VariantAccept
	VariantDecline
	VariantNegative
	VariantError
)

var variantNames = [...]string{
	VariantPrimary:       "primary",
	VariantSecondary:     "secondary",
	VariantSupplementary: "supplementary",
	VariantAccept:        "accept",
	VariantDecline:       "decline",
	VariantNegative:      "negative",
	VariantError:         "error",
}

func (v Variant) String() string {
	if v < 0 || int(v) >= len(variantNames) {
		return fmt.Sprintf("variant(%d)", int(v))
	}
	return variantNames[v]
}

// ParseVariant is the inverse of String.
func ParseVariant(s string) (Variant, error) {
	for i, n := range variantNames {
		if n == s {
			return Variant(i), nil
		}
	}
	return 0, fmt.Errorf("unknown variant %q", s)
}

// Style is the resolved look of a variant.
type Style struct {
	Normal   text.Colors
	Disabled text.Colors
	// Border is used for box outlines.
	Border text.Colors
}

var disabled = text.Colors{text.Faint}

// Style resolves the variant. Every variant has an entry; an out of range
// value is a programming error.
func (v Variant) Style() Style {
	switch v {
	case VariantPrimary:
		return Style{Normal: text.Colors{text.Bold, text.FgHiBlue}, Disabled: disabled, Border: text.Colors{text.FgBlue}}
	case VariantSecondary:
		return Style{Normal: text.Colors{text.FgCyan}, Disabled: disabled, Border: text.Colors{text.FgCyan}}
	case VariantSupplementary:
		return Style{Normal: text.Colors{text.Underline}, Disabled: disabled, Border: text.Colors{text.FgWhite}}
	case VariantAccept:
		return Style{Normal: text.Colors{text.Bold, text.BgGreen, text.FgBlack}, Disabled: disabled, Border: text.Colors{text.FgGreen}}
	case VariantDecline:
		return Style{Normal: text.Colors{text.Bold, text.FgRed}, Disabled: disabled, Border: text.Colors{text.FgRed}}
	case VariantNegative:
		return Style{Normal: text.Colors{text.Bold, text.BgRed, text.FgWhite}, Disabled: disabled, Border: text.Colors{text.FgRed}}
	case VariantError:
		return Style{Normal: text.Colors{text.FgHiRed}, Disabled: disabled, Border: text.Colors{text.FgHiRed}}
	}
	panic(fmt.Sprintf("ui: no style for %s", v))
}

// StatusColors is the color of a record or participant status label.
func StatusColors(status string) text.Colors {
	switch domain.RecordStatus(status) {
	case domain.RecordActive:
		return text.Colors{text.FgGreen}
	case domain.RecordPending:
		return text.Colors{text.FgYellow}
	case domain.RecordDeclined:
		return text.Colors{text.FgRed}
	case domain.RecordSuspended:
		return text.Colors{text.FgMagenta}
	case domain.RecordExpired, domain.RecordWithdrawn:
		return text.Colors{text.FgHiBlack}
	}
	return text.Colors{}
}

// ToneColors is the color of a log item icon.
func ToneColors(t icon.Tone) text.Colors {
	switch t {
	case icon.TonePositive:
		return text.Colors{text.FgGreen}
	case icon.ToneNegative:
		return text.Colors{text.FgRed}
	case icon.ToneNeutral:
		return text.Colors{text.FgHiBlack}
	}
	return text.Colors{text.FgBlue}
}

// InfoBoxVariant picks the variant of a record's status info box.
func InfoBoxVariant(status domain.RecordStatus) Variant {
	switch status {
	case domain.RecordActive:
		return VariantPrimary
	case domain.RecordPending:
		return VariantSecondary
	}
	return VariantError
}
