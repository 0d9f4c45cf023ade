package keeper

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/schollz/beatkeeper/internal/anlz"
	"github.com/schollz/beatkeeper/internal/types"
)

func TestComputeBasicBeat(t *testing.T) {
	tracker := &TrackTracker{
		Grid: &anlz.BeatGrid{Beats: []anlz.GridBeat{
			{Time: 0, Tempo: 12000, BeatNumber: 1},
		}},
	}

	// Half a second into a 120 BPM track is exactly one beat.
	res := tracker.Compute(types.RawTiming{BPM: 120, SamplePosition: 22050}, 0)
	assert.InDelta(t, 1.0, res.Beat, 1e-4)
	assert.Equal(t, float32(120), res.OriginalBPM)
}

func TestComputeOffsetBeatPhase(t *testing.T) {
	tracker := &TrackTracker{
		Grid: &anlz.BeatGrid{Beats: []anlz.GridBeat{
			{Time: 1000, Tempo: 12000, BeatNumber: 3},
		}},
	}

	// 1.5 s: half a second past a grid beat on bar position 3.
	res := tracker.Compute(types.RawTiming{BPM: 120, SamplePosition: 66150}, 0)
	assert.InDelta(t, 3.0, res.Beat, 1e-4)
}

func TestComputeTempoMapping(t *testing.T) {
	tracker := &TrackTracker{
		Grid: &anlz.BeatGrid{Beats: []anlz.GridBeat{
			{Time: 0, Tempo: 12800, BeatNumber: 1},
		}},
	}

	res := tracker.Compute(types.RawTiming{BPM: 128, SamplePosition: 0}, 0)
	assert.Equal(t, float32(128.0), res.OriginalBPM)
}

func TestComputeZeroBPMCoercion(t *testing.T) {
	tracker := &TrackTracker{}

	res := tracker.Compute(types.RawTiming{BPM: 0, SamplePosition: 44100}, 0)
	// Derived math assumes 120, the raw value stays 0 for the modules.
	assert.Equal(t, float32(0), res.Raw.BPM)
	assert.Equal(t, float32(120), res.OriginalBPM)
	assert.Equal(t, float32(0), res.Beat)
}

func TestComputeWithoutGrid(t *testing.T) {
	tracker := &TrackTracker{}

	res := tracker.Compute(types.RawTiming{BPM: 140, SamplePosition: 88200}, 0)
	assert.Equal(t, float32(0), res.Beat)
	assert.Equal(t, float32(120), res.OriginalBPM)
	assert.Equal(t, "", res.Phrase)
	assert.Equal(t, int32(0), res.NextPhraseIn)
}

func TestComputeDelayCompensation(t *testing.T) {
	tracker := &TrackTracker{
		Grid: &anlz.BeatGrid{Beats: []anlz.GridBeat{
			{Time: 0, Tempo: 12000, BeatNumber: 1},
		}},
	}

	plain := tracker.Compute(types.RawTiming{BPM: 120, SamplePosition: 22050}, 0)
	delayed := tracker.Compute(types.RawTiming{BPM: 120, SamplePosition: 0}, 22050)
	assert.Equal(t, plain.Beat, delayed.Beat)
}

func TestComputeBeatMonotonicity(t *testing.T) {
	grid := &anlz.BeatGrid{}
	for i := 0; i < 16; i++ {
		grid.Beats = append(grid.Beats, anlz.GridBeat{
			Time:       uint32(i * 500),
			Tempo:      12000,
			BeatNumber: uint16(i%4 + 1),
		})
	}
	tracker := &TrackTracker{Grid: grid}

	last := float32(-1)
	for pos := int64(0); pos < 8*44100; pos += 4410 {
		res := tracker.Compute(types.RawTiming{BPM: 120, SamplePosition: pos}, 0)
		if res.Beat < last {
			// Only the bar wraparound may go backwards.
			assert.Less(t, res.Beat, float32(1))
			assert.Greater(t, last, float32(3))
		}
		last = res.Beat
	}
}

func TestComputePhraseTransition(t *testing.T) {
	grid := &anlz.BeatGrid{}
	for i := 0; i < 32; i++ {
		grid.Beats = append(grid.Beats, anlz.GridBeat{
			Time:       uint32(i * 500),
			Tempo:      12000,
			BeatNumber: uint16(i%4 + 1),
		})
	}
	tracker := &TrackTracker{
		Grid: grid,
		Structure: &anlz.SongStructure{
			Mood: anlz.MoodMid,
			Phrases: []anlz.Phrase{
				{Index: 1, Beat: 1, Kind: 1},
				{Index: 2, Beat: 17, Kind: 9},
			},
		},
	}

	// beat_num 16: one beat before the chorus.
	samplesPerBeat := 0.5 * 44100
	res := tracker.Compute(types.RawTiming{BPM: 120, SamplePosition: int64(15.25 * samplesPerBeat)}, 0)
	assert.Equal(t, "Intro", res.Phrase)
	assert.Equal(t, "Chorus", res.NextPhrase)
	assert.Equal(t, int32(1), res.NextPhraseIn)

	// Exactly at beat 17 the chorus is already active.
	res = tracker.Compute(types.RawTiming{BPM: 120, SamplePosition: int64(16.25 * samplesPerBeat)}, 0)
	assert.Equal(t, "Chorus", res.Phrase)
	assert.Equal(t, "", res.NextPhrase)
	assert.Equal(t, int32(0), res.NextPhraseIn)
}
