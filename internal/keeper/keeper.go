// Package keeper is the real-time deck tracker: a fixed-rate polling loop
// that reconstructs each deck's musical state from host memory and ANLZ
// analysis files and fans typed change events out to the output modules.
package keeper

import (
	"math"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/schollz/beatkeeper/internal/anlz"
	"github.com/schollz/beatkeeper/internal/config"
	"github.com/schollz/beatkeeper/internal/offsets"
	"github.com/schollz/beatkeeper/internal/outputmodules"
	"github.com/schollz/beatkeeper/internal/procmem"
	"github.com/schollz/beatkeeper/internal/types"
)

const (
	maxDecks       = 4
	reconnectDelay = 3 * time.Second
)

type heartbeatConfig struct {
	bpm             bool
	originalBPM     bool
	beat            bool
	pos             bool
	phrase          bool
	anlzPath        bool
	masterdeckIndex bool
	trackInfo       bool
}

// fieldTracker is the per-channel change memory: one per deck plus one for
// the mirrored master channel.
type fieldTracker struct {
	bpm          *ChangeTracked[float32]
	originalBPM  *ChangeTracked[float32]
	beat         *ChangeTracked[float32]
	pos          *ChangeTracked[int64]
	phrase       *ChangeTracked[string]
	nextPhrase   *ChangeTracked[string]
	nextPhraseIn *ChangeTracked[int32]
}

func newFieldTracker() *fieldTracker {
	return &fieldTracker{
		bpm:          NewChangeTracked[float32](0),
		originalBPM:  NewChangeTracked[float32](0),
		beat:         NewChangeTracked[float32](0),
		pos:          NewChangeTracked[int64](0),
		phrase:       NewChangeTracked(""),
		nextPhrase:   NewChangeTracked(""),
		nextPhraseIn: NewChangeTracked[int32](0),
	}
}

// BeatKeeper owns the scheduler state: change detectors, per-deck analysis
// caches, the filesystem watcher and the output modules. The host snapshot
// is created and dropped as the host comes and goes.
type BeatKeeper struct {
	log    *zap.SugaredLogger
	attach procmem.AttachFunc
	table  offsets.Table

	modules []outputmodules.OutputModule

	masterdeckIndex *ChangeTracked[int]
	offsetSamples   int64
	trackInfos      []*ChangeTracked[types.TrackInfo]
	trackers        []*TrackTracker
	anlzPaths       []*ChangeTracked[string]
	watcher         *watcherBridge

	deckFields   []*fieldTracker
	masterFields *fieldTracker

	heartbeat     heartbeatConfig
	verySlowLatch bool

	lastError *procmem.ReadError
	keepWarm  bool
	decks     int

	updateRate    int
	slowEvery     int
	verySlowEvery int
}

// New builds a keeper from configuration. The attach function is injected
// so tests can run against a fake process.
func New(table offsets.Table, modules []outputmodules.OutputModule, conf *config.Config, log *zap.SugaredLogger, attach procmem.AttachFunc) (*BeatKeeper, error) {
	kc := conf.Sub("keeper")

	decks := kc.Int("decks", 2)
	if decks < 1 {
		decks = 1
	}
	if decks > maxDecks {
		decks = maxDecks
	}
	if decks > table.Decks() {
		decks = table.Decks()
	}

	watcher, err := newWatcherBridge(log)
	if err != nil {
		return nil, err
	}

	k := &BeatKeeper{
		log:             log,
		attach:          attach,
		table:           table,
		modules:         modules,
		masterdeckIndex: NewChangeTracked(0),
		offsetSamples:   int64(math.Round(kc.Float("delay_compensation", 0) * types.SampleRate / 1000)),
		watcher:         watcher,
		masterFields:    newFieldTracker(),
		keepWarm:        kc.Bool("keep_warm", true),
		decks:           decks,
		updateRate:      kc.Int("update_rate", 50),
		slowEvery:       kc.Int("slow_update_every_nth", 50),
		verySlowEvery:   kc.Int("very_slow_update_every_nth", 1200),
		heartbeat: heartbeatConfig{
			bpm:             kc.Bool("heartbeat.bpm", false),
			originalBPM:     kc.Bool("heartbeat.original_bpm", false),
			beat:            kc.Bool("heartbeat.beat", false),
			pos:             kc.Bool("heartbeat.time", false),
			phrase:          kc.Bool("heartbeat.phrase", false),
			anlzPath:        kc.Bool("heartbeat.anlz_path", false),
			masterdeckIndex: kc.Bool("heartbeat.masterdeck_index", false),
			trackInfo:       kc.Bool("heartbeat.track_info", false),
		},
	}
	if k.updateRate < 1 {
		k.updateRate = 50
	}
	if k.slowEvery < 1 {
		k.slowEvery = 50
	}
	if k.verySlowEvery < 1 {
		k.verySlowEvery = 1200
	}

	for i := 0; i < decks; i++ {
		k.trackInfos = append(k.trackInfos, NewChangeTracked(types.TrackInfo{}))
		k.trackers = append(k.trackers, &TrackTracker{})
		k.anlzPaths = append(k.anlzPaths, NewChangeTracked(""))
		k.deckFields = append(k.deckFields, newFieldTracker())
	}

	return k, nil
}

// Start instantiates the enabled output modules, builds the keeper and
// runs it. It only returns if the keeper cannot be constructed.
func Start(table offsets.Table, defs []outputmodules.ModuleDefinition, conf *config.Config, log *zap.SugaredLogger, attach procmem.AttachFunc) error {
	var modules []outputmodules.OutputModule
	log.Info("Active modules:")
	for _, def := range defs {
		if !conf.Bool(def.ConfigName+".enabled", false) {
			continue
		}
		log.Infof(" - %s", def.PrettyName)
		m, err := def.Create(conf.Sub(def.ConfigName), log.Named(def.PrettyName))
		if err != nil {
			log.Errorf("Failed to start module %s: %v", def.PrettyName, err)
			continue
		}
		modules = append(modules, m)
	}

	k, err := New(table, modules, conf, log, attach)
	if err != nil {
		return err
	}
	k.Run()
	return nil
}

// Run is the outer loop: attach, tick at the configured rate, and on any
// read failure drop the snapshot and retry after a fixed backoff.
func (k *BeatKeeper) Run() {
	period := time.Second / time.Duration(k.updateRate)
	var rb *Snapshot
	var n uint64

	k.log.Info("Looking for Rekordbox...")

	for {
		if rb == nil {
			snap, err := NewSnapshot(k.attach, k.table, k.decks)
			if err != nil {
				k.reportError(err)
				time.Sleep(reconnectDelay)
				continue
			}
			rb = snap
			k.log.Info("Connected to Rekordbox!")
			k.lastError = nil
			continue
		}

		start := time.Now()
		if err := k.update(rb, n%uint64(k.slowEvery) == 0, n%uint64(k.verySlowEvery) == 0); err != nil {
			k.reportError(err)
			rb.Close()
			rb = nil
			k.log.Error("Connection to Rekordbox lost")
			k.log.Info("Reconnecting in 3s...")
			time.Sleep(reconnectDelay)
			continue
		}
		n++
		if elapsed := time.Since(start); period > elapsed {
			time.Sleep(period - elapsed)
		}
	}
}

// reportError logs a read failure unless it is identical to the last one
// reported, which keeps the 3 s reconnect loop from flooding the log.
func (k *BeatKeeper) reportError(e *procmem.ReadError) {
	if e.Equal(k.lastError) {
		return
	}
	switch e.Err.Kind {
	case procmem.ProcessNotFound, procmem.ModuleNotFound:
		k.log.Error("Rekordbox process not found!")
	case procmem.SnapshotFailed:
		k.log.Errorf("Snapshot failed: %s", e.Err.Msg)
		k.log.Info("    Ensure Rekordbox is running!")
	case procmem.ReadMemoryFailed:
		k.log.Errorf("Read memory failed: %s", e.Err.Msg)
		k.log.Info("    Try the following:")
		k.log.Info("    - Wait for Rekordbox to start and load a track")
		k.log.Info("    - Ensure you have selected the correct Rekordbox version in the config")
		k.log.Info("    - Check the number of decks in the config")
		k.log.Info("    - Update the offsets and program")
	case procmem.WriteMemoryFailed:
		k.log.Errorf("Write memory failed: %s", e.Err.Msg)
	}
	if e.Pointer != nil {
		k.log.Debugf("Pointer: %v", *e.Pointer)
	}
	if e.Address != 0 {
		k.log.Debugf("Address: %X", e.Address)
	}
	k.lastError = e
}

// update runs one tick against an attached host. Any memory read failure
// propagates and costs the attachment; ANLZ trouble is contained per deck.
func (k *BeatKeeper) update(rb *Snapshot, slow, verySlow bool) *procmem.ReadError {
	idx, err := rb.ReadMasterdeckIndex()
	if err != nil {
		return err
	}
	masterdeckIndexChanged := k.masterdeckIndex.Set(idx)
	if idx >= rb.Decks() {
		// No master deck selected yet: the host is still initialising.
		return nil
	}

	if verySlow {
		k.verySlowLatch = true
	}

	for _, m := range k.modules {
		m.PreUpdate()
	}

	for i := 0; i < k.decks; i++ {
		isMaster := i == idx
		if !isMaster && !k.keepWarm {
			continue
		}
		raw, err := rb.ReadTiming(i)
		if err != nil {
			return err
		}
		res := k.trackers[i].Compute(raw, k.offsetSamples)
		k.routeDeck(i, res, verySlow)
		if isMaster {
			k.routeMaster(res, verySlow)
		}
	}

	masterTrackChanged := false
	if slow {
		infos, err := rb.ReadTrackInfos()
		if err != nil {
			return err
		}
		for i, info := range infos {
			if k.trackInfos[i].Set(info) || k.verySlowLatch && k.heartbeat.trackInfo {
				for _, m := range k.modules {
					m.TrackChanged(info, i)
				}
				if idx == i {
					masterTrackChanged = true
				}
			}
		}

		anlzFileUpdated := make([]bool, k.decks)
		for _, p := range k.watcher.Drain() {
			if d := k.matchDeck(NormalizePath(p)); d >= 0 {
				anlzFileUpdated[d] = true
			}
		}

		paths, err := rb.ReadAnlzPaths()
		if err != nil {
			return err
		}
		for i, path := range paths {
			pathChanged := k.anlzPaths[i].Value() != path
			if pathChanged || k.verySlowLatch && k.heartbeat.anlzPath {
				for _, m := range k.modules {
					m.AnlzPathChanged(path, i)
				}
			}

			if pathChanged || anlzFileUpdated[i] {
				if pathChanged {
					k.log.Debugf("Deck %d ANLZ file path changed: %s", i, path)
					if old := k.anlzPaths[i].Value(); old != "" {
						k.watcher.Unwatch(old)
						k.watcher.Unwatch(extPath(old))
					}
					k.anlzPaths[i].Set(path)
					k.watcher.Watch(path)
					k.watcher.Watch(extPath(path))
				}
				k.reloadAnlz(i)
			}
		}

		for _, m := range k.modules {
			m.SlowUpdate()
		}
		k.verySlowLatch = false
	}

	if masterdeckIndexChanged || verySlow && k.heartbeat.masterdeckIndex {
		for _, m := range k.modules {
			m.MasterdeckIndexChanged(idx)
		}
	}

	if masterdeckIndexChanged || masterTrackChanged {
		info := k.trackInfos[idx].Value()
		for _, m := range k.modules {
			m.TrackChangedMaster(info)
		}
	}

	return nil
}

func (k *BeatKeeper) routeDeck(deck int, res TrackerResult, verySlow bool) {
	t := k.deckFields[deck]
	hb := k.heartbeat

	bpmChanged := t.bpm.Set(res.Raw.BPM) || verySlow && hb.bpm
	originalBPMChanged := t.originalBPM.Set(res.OriginalBPM) || verySlow && hb.originalBPM
	beatChanged := t.beat.Set(res.Beat) || verySlow && hb.beat
	posChanged := t.pos.Set(res.Raw.SamplePosition) || verySlow && hb.pos
	phraseChanged := t.phrase.Set(res.Phrase) || verySlow && hb.phrase
	nextPhraseChanged := t.nextPhrase.Set(res.NextPhrase) || verySlow && hb.phrase
	nextPhraseInChanged := t.nextPhraseIn.Set(res.NextPhraseIn) || verySlow && hb.phrase

	if bpmChanged {
		for _, m := range k.modules {
			m.BPMChanged(res.Raw.BPM, deck)
		}
	}
	if originalBPMChanged {
		for _, m := range k.modules {
			m.OriginalBPMChanged(res.OriginalBPM, deck)
		}
	}
	if beatChanged {
		for _, m := range k.modules {
			m.BeatUpdate(res.Beat, deck)
		}
	}
	if posChanged {
		seconds := float32(res.Raw.SamplePosition) / types.SampleRate
		for _, m := range k.modules {
			m.TimeUpdate(seconds, deck)
		}
	}
	if phraseChanged {
		for _, m := range k.modules {
			m.PhraseChanged(res.Phrase, deck)
		}
	}
	if nextPhraseChanged {
		for _, m := range k.modules {
			m.NextPhraseChanged(res.NextPhrase, deck)
		}
	}
	if nextPhraseInChanged {
		for _, m := range k.modules {
			m.NextPhraseIn(res.NextPhraseIn, deck)
		}
	}
}

func (k *BeatKeeper) routeMaster(res TrackerResult, verySlow bool) {
	t := k.masterFields
	hb := k.heartbeat

	bpmChanged := t.bpm.Set(res.Raw.BPM) || verySlow && hb.bpm
	originalBPMChanged := t.originalBPM.Set(res.OriginalBPM) || verySlow && hb.originalBPM
	beatChanged := t.beat.Set(res.Beat) || verySlow && hb.beat
	posChanged := t.pos.Set(res.Raw.SamplePosition) || verySlow && hb.pos
	phraseChanged := t.phrase.Set(res.Phrase) || verySlow && hb.phrase
	nextPhraseChanged := t.nextPhrase.Set(res.NextPhrase) || verySlow && hb.phrase
	nextPhraseInChanged := t.nextPhraseIn.Set(res.NextPhraseIn) || verySlow && hb.phrase

	if bpmChanged {
		for _, m := range k.modules {
			m.BPMChangedMaster(res.Raw.BPM)
		}
	}
	if originalBPMChanged {
		for _, m := range k.modules {
			m.OriginalBPMChangedMaster(res.OriginalBPM)
		}
	}
	if beatChanged {
		for _, m := range k.modules {
			m.BeatUpdateMaster(res.Beat)
		}
	}
	if posChanged {
		seconds := float32(res.Raw.SamplePosition) / types.SampleRate
		for _, m := range k.modules {
			m.TimeUpdateMaster(seconds)
		}
	}
	if phraseChanged {
		for _, m := range k.modules {
			m.PhraseChangedMaster(res.Phrase)
		}
	}
	if nextPhraseChanged {
		for _, m := range k.modules {
			m.NextPhraseChangedMaster(res.NextPhrase)
		}
	}
	if nextPhraseInChanged {
		for _, m := range k.modules {
			m.NextPhraseInMaster(res.NextPhraseIn)
		}
	}
}

// matchDeck finds the deck whose known analysis path produced the event
// path, mapping a sibling .EXT back to its .DAT. When two decks share
// analysis files the first match wins.
func (k *BeatKeeper) matchDeck(path string) int {
	for i, p := range k.anlzPaths {
		if v := p.Value(); v != "" && (v == path || extPath(v) == path) {
			return i
		}
	}
	return -1
}

// reloadAnlz re-reads and re-parses a deck's analysis files into its
// tracker. Failures log and leave the previous cache contents in place.
func (k *BeatKeeper) reloadAnlz(deck int) {
	path := k.anlzPaths[deck].Value()
	title := k.trackInfos[deck].Value().Title

	raw, err := os.ReadFile(path)
	if err != nil {
		k.log.Errorf("Failed to read anlz file for deck %d: %s", deck, path)
		k.log.Error("If you are loading a new Tidal track for the first time, eject and load it again.")
		return
	}
	parsed, err := anlz.Parse(raw)
	if err != nil {
		k.log.Errorf("Failed to parse DAT file for song %s, path %s: %v", title, path, err)
		return
	}
	var grid *anlz.BeatGrid
	for _, section := range parsed.Sections {
		if g, ok := section.(*anlz.BeatGrid); ok {
			grid = g
		}
	}

	ext := extPath(path)
	raw, err = os.ReadFile(ext)
	if err != nil {
		k.log.Errorf("Failed to read EXT file for song %s, %s: %v", title, ext, err)
		return
	}
	parsed, err = anlz.Parse(raw)
	if err != nil {
		k.log.Errorf("Failed to parse EXT file for song %s, path %s: %v", title, ext, err)
		return
	}
	if grid != nil {
		k.trackers[deck].Grid = grid
	}
	for _, section := range parsed.Sections {
		if structure, ok := section.(*anlz.SongStructure); ok {
			k.trackers[deck].Structure = structure
		}
	}
}

// extPath maps a .DAT path to its sibling .EXT.
func extPath(path string) string {
	return strings.ReplaceAll(path, ".DAT", ".EXT")
}
