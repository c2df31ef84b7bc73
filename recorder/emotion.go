package recorder

import "strings"

// shiftThreshold is the intensity distance above which a change is reported.
const shiftThreshold = 1

// emotionIntensity places labels on one scale from distressed (0) to delighted (6).
var emotionIntensity = map[string]int{
	"angry":       0,
	"overwhelmed": 1,
	"frustrated":  1,
	"anxious":     2,
	"confused":    2,
	"hesitant":    2,
	"bored":       3,
	"neutral":     3,
	"curious":     4,
	"focused":     4,
	"interested":  4,
	"confident":   5,
	"satisfied":   5,
	"delighted":   6,
}

// Intensity returns the scale position of label. Unknown labels count as neutral.
func Intensity(label string) int {
	if v, ok := emotionIntensity[strings.ToLower(strings.TrimSpace(label))]; ok {
		return v
	}
	return emotionIntensity["neutral"]
}

// EmotionShift reports the signed intensity change from prev to next and whether it
// exceeds the shift threshold.
func EmotionShift(prev, next string) (int, bool) {
	delta := Intensity(next) - Intensity(prev)
	return delta, delta > shiftThreshold || delta < -shiftThreshold
}
