package keeper

import (
	"bytes"
	"strings"
	"unicode/utf8"

	"github.com/schollz/beatkeeper/internal/offsets"
	"github.com/schollz/beatkeeper/internal/procmem"
	"github.com/schollz/beatkeeper/internal/types"
)

const (
	hostProcess = "rekordbox.exe"
	hostModule  = "rekordbox.exe"

	trackInfoBytes = 200
	anlzPathBytes  = 500
)

// Snapshot owns the process handle and every pointer-chain handle for one
// host session. Timing and master-index chains are resolved once here;
// the string buffers re-resolve on every read because the host reallocates
// them on track change.
type Snapshot struct {
	proc            procmem.Process
	masterdeckIndex *procmem.Value[uint8]
	currentBPMs     []*procmem.Value[float32]
	samplePositions []*procmem.Value[int64]
	trackInfos      []*procmem.BufferChain
	anlzPaths       []*procmem.BufferChain
	decks           int
}

// NewSnapshot attaches to the host and resolves all chain handles for the
// requested number of decks. Any failure aborts the whole attach.
func NewSnapshot(attach procmem.AttachFunc, table offsets.Table, decks int) (*Snapshot, *procmem.ReadError) {
	proc, base, oserr := attach(hostProcess, hostModule)
	if oserr != nil {
		return nil, &procmem.ReadError{Err: oserr}
	}

	bpms, err := procmem.Values[float32](proc, base, table.CurrentBPM[:decks])
	if err != nil {
		proc.Close()
		return nil, err
	}
	positions, err := procmem.Values[int64](proc, base, table.SamplePosition[:decks])
	if err != nil {
		proc.Close()
		return nil, err
	}
	master, err := procmem.NewValue[uint8](proc, base, table.MasterdeckIndex)
	if err != nil {
		proc.Close()
		return nil, err
	}

	return &Snapshot{
		proc:            proc,
		masterdeckIndex: master,
		currentBPMs:     bpms,
		samplePositions: positions,
		trackInfos:      procmem.BufferChains(proc, base, table.TrackInfo[:decks], trackInfoBytes),
		anlzPaths:       procmem.BufferChains(proc, base, table.AnlzPath[:decks], anlzPathBytes),
		decks:           decks,
	}, nil
}

func (s *Snapshot) Decks() int {
	return s.decks
}

func (s *Snapshot) Close() {
	s.proc.Close()
}

func (s *Snapshot) ReadTiming(deck int) (types.RawTiming, *procmem.ReadError) {
	position, err := s.samplePositions[deck].Read()
	if err != nil {
		return types.RawTiming{}, err
	}
	bpm, err := s.currentBPMs[deck].Read()
	if err != nil {
		return types.RawTiming{}, err
	}
	return types.RawTiming{BPM: bpm, SamplePosition: position}, nil
}

func (s *Snapshot) ReadMasterdeckIndex() (int, *procmem.ReadError) {
	v, err := s.masterdeckIndex.Read()
	if err != nil {
		return 0, err
	}
	return int(v), nil
}

// ReadTrackInfos reads and decodes every deck's track-info buffer.
func (s *Snapshot) ReadTrackInfos() ([]types.TrackInfo, *procmem.ReadError) {
	out := make([]types.TrackInfo, s.decks)
	for i := 0; i < s.decks; i++ {
		raw, err := s.trackInfos[i].Read()
		if err != nil {
			return nil, err
		}
		out[i] = decodeTrackInfo(raw)
	}
	return out, nil
}

// ReadAnlzPaths reads every deck's analysis-file path, separator-normalized.
func (s *Snapshot) ReadAnlzPaths() ([]string, *procmem.ReadError) {
	out := make([]string, s.decks)
	for i := 0; i < s.decks; i++ {
		raw, err := s.anlzPaths[i].Read()
		if err != nil {
			return nil, err
		}
		out[i] = NormalizePath(decodeCString(raw))
	}
	return out, nil
}

// decodeCString slices raw up to the first NUL and decodes lossily: bytes
// that are not valid UTF-8 yield the "ERR" sentinel.
func decodeCString(raw []byte) string {
	if i := bytes.IndexByte(raw, 0x00); i >= 0 {
		raw = raw[:i]
	}
	if !utf8.Valid(raw) {
		return "ERR"
	}
	return string(raw)
}

// decodeTrackInfo parses the host's three-line "Key: Value" block.
func decodeTrackInfo(raw []byte) types.TrackInfo {
	text := decodeCString(raw)
	fields := [3]string{}
	for i, line := range strings.SplitN(text, "\n", 4) {
		if i >= len(fields) {
			break
		}
		line = strings.TrimSuffix(line, "\r")
		if _, value, found := strings.Cut(line, ": "); found {
			fields[i] = value
		}
	}
	return types.TrackInfo{Title: fields[0], Artist: fields[1], Album: fields[2]}
}

// NormalizePath rewrites host-style backslash separators to forward
// slashes so path comparison and watcher registration agree.
func NormalizePath(p string) string {
	return strings.ReplaceAll(p, "\\", "/")
}
