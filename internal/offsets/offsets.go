// Package offsets holds the per-host-version pointer chain table. Chains
// are discovered externally and shipped as JSON; a built-in table covers
// the most recent verified host version.
package offsets

import (
	"fmt"
	"os"
	"strings"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Pointer is one chain: the intermediate offsets are dereferenced in order
// starting from the module base, then the final offset is added.
type Pointer struct {
	Offsets []uint64 `json:"offsets"`
	Final   uint64   `json:"final_offset"`
}

func (p Pointer) String() string {
	var b strings.Builder
	b.WriteString("[")
	for i, o := range p.Offsets {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%X", o)
	}
	fmt.Fprintf(&b, "] + %X", p.Final)
	return b.String()
}

// Equal reports value equality, used by the scheduler's error dedup.
func (p Pointer) Equal(o Pointer) bool {
	if p.Final != o.Final || len(p.Offsets) != len(o.Offsets) {
		return false
	}
	for i := range p.Offsets {
		if p.Offsets[i] != o.Offsets[i] {
			return false
		}
	}
	return true
}

// Table is the full offset set for one host version. The per-deck slices
// are indexed by deck and must all cover at least the configured deck count.
type Table struct {
	Version         string    `json:"version"`
	MasterdeckIndex Pointer   `json:"masterdeck_index"`
	CurrentBPM      []Pointer `json:"current_bpm"`
	SamplePosition  []Pointer `json:"sample_position"`
	TrackInfo       []Pointer `json:"track_info"`
	AnlzPath        []Pointer `json:"anlz_path"`
}

// Decks returns how many decks the table can address.
func (t Table) Decks() int {
	n := len(t.CurrentBPM)
	for _, m := range []int{len(t.SamplePosition), len(t.TrackInfo), len(t.AnlzPath)} {
		if m < n {
			n = m
		}
	}
	return n
}

// Load reads a table from a JSON file.
func Load(path string) (Table, error) {
	var t Table
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := json.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("parse offsets %s: %w", path, err)
	}
	if t.Decks() == 0 {
		return t, fmt.Errorf("offsets %s: empty deck tables", path)
	}
	return t, nil
}

// Default returns the built-in table for the last host version the chains
// were verified against.
func Default() Table {
	deckChains := func(base uint64, stride uint64, final uint64) []Pointer {
		ps := make([]Pointer, 4)
		for i := range ps {
			ps[i] = Pointer{Offsets: []uint64{base, 0x28 + uint64(i)*stride}, Final: final}
		}
		return ps
	}

	return Table{
		Version:         "7.0.9",
		MasterdeckIndex: Pointer{Offsets: []uint64{0x044552A0, 0x90}, Final: 0xE10},
		CurrentBPM:      deckChains(0x0443F650, 0x8, 0x140),
		SamplePosition:  deckChains(0x0443F650, 0x8, 0x1E18),
		TrackInfo:       deckChains(0x04440A88, 0x10, 0x158),
		AnlzPath:        deckChains(0x04440A88, 0x10, 0x0),
	}
}
