// Package icon names the glyphs and tones views use. Rendering a glyph is
// left to the presentation layer.
package icon

type Glyph string

const (
	CircleCheck         Glyph = "circle-check"
	CircleXmark         Glyph = "circle-xmark"
	CircleInfo          Glyph = "circle-info"
	Ban                 Glyph = "ban"
	BoxArchive          Glyph = "box-archive"
	CalendarExclamation Glyph = "calendar-exclamation"
	Minus               Glyph = "minus"
	Hourglass           Glyph = "hourglass"
	ExclamationCircle   Glyph = "exclamation-circle"
	Handshake           Glyph = "handshake"
	ScaleBalanced       Glyph = "scale-balanced"
	Building            Glyph = "building"
	FileSignature       Glyph = "file-signature"
	Lock                Glyph = "lock"
	LockOpen            Glyph = "lock-open"
)

// Tone is the semantic color of a log item icon.
type Tone string

const (
	ToneInfo     Tone = "info"
	TonePositive Tone = "positive"
	ToneNegative Tone = "negative"
	ToneNeutral  Tone = "neutral"
)

type Icon struct {
	Tone  Tone  `json:"tone"`
	Glyph Glyph `json:"glyph"`
}

// Info is the fallback icon of log items.
var Info = Icon{Tone: ToneInfo, Glyph: CircleInfo}

// Symbol is a plain-text stand-in for terminals without icon fonts.
func (g Glyph) Symbol() string {
	switch g {
	case CircleCheck:
		return "✔"
	case CircleXmark:
		return "✘"
	case CircleInfo:
		return "ℹ"
	case Ban:
		return "⊘"
	case BoxArchive:
		return "▣"
	case CalendarExclamation:
		return "!"
	case Minus:
		return "-"
	case Hourglass:
		return "…"
	case ExclamationCircle:
		return "⚠"
	case Handshake:
		return "🤝"
	case ScaleBalanced:
		return "⚖"
	case Building:
		return "🏢"
	case FileSignature:
		return "✍"
	case Lock:
		return "🔒"
	case LockOpen:
		return "🔓"
	default:
		return "?"
	}
}
