// Package outputmodules defines the capability set the keeper fans events
// out to, plus the bundled implementations. Modules embed NoOp and
// override only the callbacks they care about.
package outputmodules

import (
	"go.uber.org/zap"

	"github.com/schollz/beatkeeper/internal/config"
	"github.com/schollz/beatkeeper/internal/types"
)

// OutputModule receives the keeper's typed event stream. Callbacks run on
// the scheduler thread and must not block; anything a module keeps past
// the call must be copied.
type OutputModule interface {
	PreUpdate()
	SlowUpdate()

	BPMChanged(bpm float32, deck int)
	BPMChangedMaster(bpm float32)

	OriginalBPMChanged(bpm float32, deck int)
	OriginalBPMChangedMaster(bpm float32)

	BeatUpdate(beat float32, deck int)
	BeatUpdateMaster(beat float32)

	TimeUpdate(seconds float32, deck int)
	TimeUpdateMaster(seconds float32)

	TrackChanged(track types.TrackInfo, deck int)
	TrackChangedMaster(track types.TrackInfo)

	AnlzPathChanged(path string, deck int)

	PhraseChanged(phrase string, deck int)
	PhraseChangedMaster(phrase string)

	NextPhraseChanged(phrase string, deck int)
	NextPhraseChangedMaster(phrase string)

	NextPhraseIn(beats int32, deck int)
	NextPhraseInMaster(beats int32)

	MasterdeckIndexChanged(index int)
}

// NoOp implements every callback as a no-op, for embedding.
type NoOp struct{}

func (NoOp) PreUpdate() {}
func (NoOp) SlowUpdate() {}
func (NoOp) BPMChanged(float32, int) {}
func (NoOp) BPMChangedMaster(float32) {}
func (NoOp) OriginalBPMChanged(float32, int) {}
func (NoOp) OriginalBPMChangedMaster(float32) {}
func (NoOp) BeatUpdate(float32, int) {}
func (NoOp) BeatUpdateMaster(float32) {}
func (NoOp) TimeUpdate(float32, int) {}
func (NoOp) TimeUpdateMaster(float32) {}
func (NoOp) TrackChanged(types.TrackInfo, int) {}
func (NoOp) TrackChangedMaster(types.TrackInfo) {}
func (NoOp) AnlzPathChanged(string, int) {}
func (NoOp) PhraseChanged(string, int) {}
func (NoOp) PhraseChangedMaster(string) {}
func (NoOp) NextPhraseChanged(string, int) {}
func (NoOp) NextPhraseChangedMaster(string) {}
func (NoOp) NextPhraseIn(int32, int) {}
func (NoOp) NextPhraseInMaster(int32) {}
func (NoOp) MasterdeckIndexChanged(int) {}

// ModuleDefinition names a module in config and knows how to build it.
// Create receives the module's own config namespace and a scoped logger.
type ModuleDefinition struct {
	ConfigName string
	PrettyName string
	Create     func(conf *config.Config, log *zap.SugaredLogger) (OutputModule, error)
}

// All returns the definitions of every bundled module, in the order their
// enabled flags are checked at startup.
func All() []ModuleDefinition {
	return []ModuleDefinition{
		{ConfigName: "osc", PrettyName: "OSC", Create: NewOSC},
		{ConfigName: "setlist", PrettyName: "Setlist", Create: NewSetlist},
		{ConfigName: "deckview", PrettyName: "Deck View", Create: NewDeckview},
	}
}
