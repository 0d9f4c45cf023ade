package keeper

import (
	"github.com/schollz/beatkeeper/internal/anlz"
	"github.com/schollz/beatkeeper/internal/types"
)

// TrackTracker carries a deck's parsed analysis data and turns raw memory
// samples into musical position. One per deck, owned by the keeper.
type TrackTracker struct {
	Grid      *anlz.BeatGrid
	Structure *anlz.SongStructure
}

// TrackerResult is the derived state for one deck on one tick.
type TrackerResult struct {
	Beat         float32
	OriginalBPM  float32
	Raw          types.RawTiming
	Phrase       string
	NextPhrase   string
	NextPhraseIn int32
}

// Compute derives beat and phrase state from a raw sample. Pure: no reads,
// no stored state besides the analysis data. All time math is float32;
// the precision loss over a multi-hour set is accepted downstream.
func (t *TrackTracker) Compute(raw types.RawTiming, offsetSamples int64) TrackerResult {
	res := TrackerResult{Beat: 0, OriginalBPM: 120, Raw: raw}

	if raw.BPM == 0 {
		// An empty but selectable deck reports 0. Downstream consumers
		// still see the raw value; only the derived math is coerced.
		raw.BPM = 120
	}

	timeNow := float32(raw.SamplePosition+offsetSamples) / types.SampleRate
	beatIdx := 0
	if t.Grid != nil && len(t.Grid.Beats) > 0 {
		// Largest beat strictly before now, clamped to the first beat.
		// Exactly on a beat boundary the previous beat is still selected,
		// with a remainder of one full beat.
		for _, beat := range t.Grid.Beats {
			if float32(beat.Time)/1000 >= timeNow {
				break
			}
			beatIdx++
		}
		if beatIdx > 0 {
			beatIdx--
		}
		gridbeat := t.Grid.Beats[beatIdx]
		remainder := timeNow - float32(gridbeat.Time)/1000
		res.OriginalBPM = float32(gridbeat.Tempo) / 100
		secondsPerBeat := 60 / res.OriginalBPM
		barPhase := (gridbeat.BeatNumber + 3) % 4
		res.Beat = float32(barPhase) + remainder/secondsPerBeat
	}

	beatNum := beatIdx + 1
	if t.Structure != nil && len(t.Structure.Phrases) > 0 {
		phraseIdx := 0
		for _, phrase := range t.Structure.Phrases {
			if int(phrase.Beat) > beatNum {
				break
			}
			phraseIdx++
		}
		if phraseIdx > 0 {
			phraseIdx--
		}
		res.Phrase = anlz.PhraseName(t.Structure.Mood, t.Structure.Phrases[phraseIdx].Kind)
		if phraseIdx+1 < len(t.Structure.Phrases) {
			next := t.Structure.Phrases[phraseIdx+1]
			res.NextPhrase = anlz.PhraseName(t.Structure.Mood, next.Kind)
			res.NextPhraseIn = int32(next.Beat) - int32(beatNum)
		}
	}

	return res
}
