// Package types holds the small value types shared between the keeper and
// the output modules.
package types

// SampleRate is the host's internal timebase in Hz. Sample positions read
// from the host divide by this to become seconds.
const SampleRate = 44100

// RawTiming is one memory sample of a deck's playhead. BPM is the current
// (pitched) tempo; the host reports 0 when no track is loaded.
type RawTiming struct {
	BPM            float32
	SamplePosition int64
}

// TrackInfo is the metadata block the host renders for a deck.
type TrackInfo struct {
	Title  string
	Artist string
	Album  string
}
