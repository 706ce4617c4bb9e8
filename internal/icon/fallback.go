// Package icon assigns a display icon to every activity name. A fallback
// glyph is stored immediately; a generated image may replace it later.
package icon

import (
	"strings"

	"sproutcal/internal/model"
)

// keyword table, checked in order against the lower-cased name.
var keywords = []struct {
	word string
	ref  string
}{
	{"soccer", "⚽"},
	{"football", "⚽"},
	{"basketball", "🏀"},
	{"baseball", "⚾"},
	{"tennis", "🎾"},
	{"swim", "🏊"},
	{"ballet", "🩰"},
	{"dance", "💃"},
	{"taekwondo", "🥋"},
	{"karate", "🥋"},
	{"judo", "🥋"},
	{"bike", "🚲"},
	{"cycl", "🚲"},
	{"skat", "⛸️"},
	{"ski", "⛷️"},
	{"piano", "🎹"},
	{"violin", "🎻"},
	{"guitar", "🎸"},
	{"drum", "🥁"},
	{"sing", "🎤"},
	{"choir", "🎤"},
	{"music", "🎵"},
	{"draw", "🖍️"},
	{"paint", "🎨"},
	{"craft", "✂️"},
	{"lego", "🧱"},
	{"chess", "♟️"},
	{"math", "➗"},
	{"read", "📚"},
	{"book", "📚"},
	{"library", "📚"},
	{"english", "🔤"},
	{"science", "🔬"},
	{"coding", "💻"},
	{"code", "💻"},
	{"movie", "🎬"},
	{"tv", "📺"},
	{"game", "🎮"},
	{"doctor", "🩺"},
	{"dentist", "🦷"},
	{"birthday", "🎂"},
	{"party", "🎉"},
	{"zoo", "🦁"},
	{"park", "🌳"},
	{"beach", "🏖️"},
	{"flight", "✈️"},
	{"train", "🚆"},
	{"camp", "⛺"},
}

var categoryDefaults = map[model.Category]string{
	model.CategorySport:    "🏅",
	model.CategoryArt:      "🎨",
	model.CategoryMedia:    "📺",
	model.CategoryAcademic: "📘",
	model.CategoryAdhoc:    "📌",
	model.CategoryTravel:   "🧳",
}

// Fallback returns the deterministic icon for an activity. It never fails.
func Fallback(name string, category model.Category) string {
	lower := strings.ToLower(name)
	for _, k := range keywords {
		if strings.Contains(lower, k.word) {
			return k.ref
		}
	}
	if ref, ok := categoryDefaults[category]; ok {
		return ref
	}
	return "⭐"
}
