package outputmodules

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/schollz/beatkeeper/internal/types"
)

func TestDeckviewStateUpdates(t *testing.T) {
	d := &Deckview{master: -1}

	d.BPMChanged(128, 0)
	d.BeatUpdate(2.5, 0)
	d.PhraseChanged("Chorus", 0)
	d.TrackChanged(types.TrackInfo{Title: "Cola", Artist: "CamelPhat"}, 0)
	d.MasterdeckIndexChanged(0)

	decks, master := d.snapshot()
	assert.Equal(t, 0, master)
	assert.Equal(t, float32(128), decks[0].bpm)
	assert.Equal(t, float32(2.5), decks[0].beat)
	assert.Equal(t, "Chorus", decks[0].phrase)
	assert.Equal(t, "Cola", decks[0].track.Title)
}

func TestDeckviewIgnoresOutOfRangeDecks(t *testing.T) {
	d := &Deckview{}

	d.BPMChanged(128, -1)
	d.BPMChanged(128, 7)

	decks, _ := d.snapshot()
	for _, s := range decks {
		assert.Equal(t, float32(0), s.bpm)
	}
}
