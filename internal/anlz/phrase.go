package anlz

// Phrase labels are a function of (mood, kind). High-mood tracks use the
// Up/Down vocabulary; mid and low share the verse vocabulary.

var highPhrases = map[uint16]string{
	1: "Intro",
	2: "Up",
	3: "Down",
	5: "Chorus",
	6: "Outro",
}

var versePhrases = map[uint16]string{
	1:  "Intro",
	2:  "Verse 1",
	3:  "Verse 2",
	4:  "Verse 3",
	5:  "Verse 4",
	6:  "Verse 5",
	7:  "Verse 6",
	8:  "Bridge",
	9:  "Chorus",
	10: "Outro",
}

// PhraseName resolves the human label for a phrase entry. Unknown pairs
// render "?" rather than failing: the host adds vocabulary over time.
func PhraseName(mood Mood, kind uint16) string {
	var table map[uint16]string
	switch mood {
	case MoodHigh:
		table = highPhrases
	case MoodMid, MoodLow:
		table = versePhrases
	default:
		return "?"
	}
	if name, ok := table[kind]; ok {
		return name
	}
	return "?"
}

var phraseIndices = map[string]int32{
	"Intro":   1,
	"Verse 1": 2,
	"Verse 2": 3,
	"Verse 3": 4,
	"Verse 4": 5,
	"Verse 5": 6,
	"Verse 6": 7,
	"Bridge":  8,
	"Chorus":  9,
	"Outro":   10,
	"Up":      11,
	"Down":    12,
}

// PhraseNameToIndex maps a label to its stable numeric form for consumers
// that want phrase output as a number. Unknown labels (and "") map to 0.
func PhraseNameToIndex(name string) int32 {
	return phraseIndices[name]
}
