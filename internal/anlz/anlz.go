// Package anlz decodes the host's binary analysis sidecar files (.DAT and
// .EXT). Only the beat grid and song structure sections are understood;
// everything else is carried as an opaque section so callers can select by
// type. All integers are big-endian.
package anlz

import (
	"encoding/binary"
	"errors"
	"fmt"
)

type Mood uint16

const (
	MoodHigh Mood = 1
	MoodMid  Mood = 2
	MoodLow  Mood = 3
)

// GridBeat is one anchor beat: position in the bar (1..4), local tempo in
// hundredths of a BPM, and absolute time in milliseconds.
type GridBeat struct {
	BeatNumber uint16
	Tempo      uint16
	Time       uint32
}

type BeatGrid struct {
	Beats []GridBeat
}

// Phrase is one song-structure entry. Beat is a 1-based index into the
// beat grid where the phrase starts.
type Phrase struct {
	Index    uint16
	Beat     uint16
	Kind     uint16
	K1       uint8
	K2       uint8
	K3       uint8
	B        uint8
	Beat2    uint16
	Beat3    uint16
	Beat4    uint16
	Fill     uint8
	BeatFill uint16
}

type SongStructure struct {
	Mood    Mood
	EndBeat uint16
	Bank    uint8
	Phrases []Phrase
}

// RawSection is a section the decoder does not interpret.
type RawSection struct {
	Tag string
}

// File is the decoded section tree.
type File struct {
	Sections []any
}

var (
	be = binary.BigEndian

	ErrNotAnlz = errors.New("not an ANLZ file")
)

// songMask is the XOR key applied to exported song-structure payloads,
// offset per-byte by the entry count.
var songMask = [19]byte{
	0xCB, 0xE1, 0xEE, 0xFA, 0xE5, 0xEE, 0xAD, 0xEE, 0xE9, 0xD2,
	0xE9, 0xEB, 0xE1, 0xE9, 0xF3, 0xE8, 0xE9, 0xF4, 0xE1,
}

// Parse decodes a whole analysis file into its section tree.
func Parse(data []byte) (*File, error) {
	if len(data) < 12 || string(data[0:4]) != "PMAI" {
		return nil, ErrNotAnlz
	}
	headerLen := be.Uint32(data[4:8])
	fileLen := be.Uint32(data[8:12])
	if headerLen < 12 || uint32(len(data)) < headerLen || fileLen > uint32(len(data)) {
		return nil, fmt.Errorf("anlz: header out of bounds")
	}

	f := &File{}
	pos := headerLen
	for pos+12 <= uint32(len(data)) {
		tag := string(data[pos : pos+4])
		totalLen := be.Uint32(data[pos+8 : pos+12])
		if totalLen < 12 || pos+totalLen > uint32(len(data)) {
			return nil, fmt.Errorf("anlz: section %s out of bounds", tag)
		}
		section := data[pos : pos+totalLen]

		switch tag {
		case "PQTZ":
			grid, err := parseBeatGrid(section)
			if err != nil {
				return nil, err
			}
			f.Sections = append(f.Sections, grid)
		case "PSSI":
			structure, err := parseSongStructure(section)
			if err != nil {
				return nil, err
			}
			f.Sections = append(f.Sections, structure)
		default:
			f.Sections = append(f.Sections, &RawSection{Tag: tag})
		}
		pos += totalLen
	}
	return f, nil
}

func parseBeatGrid(s []byte) (*BeatGrid, error) {
	if len(s) < 24 {
		return nil, fmt.Errorf("anlz: beat grid section truncated")
	}
	count := be.Uint32(s[20:24])
	if uint32(len(s)) < 24+count*8 {
		return nil, fmt.Errorf("anlz: beat grid claims %d beats beyond section end", count)
	}

	grid := &BeatGrid{Beats: make([]GridBeat, count)}
	for i := uint32(0); i < count; i++ {
		b := s[24+i*8:]
		grid.Beats[i] = GridBeat{
			BeatNumber: be.Uint16(b[0:2]),
			Tempo:      be.Uint16(b[2:4]),
			Time:       be.Uint32(b[4:8]),
		}
		if i > 0 && grid.Beats[i].Time <= grid.Beats[i-1].Time {
			return nil, fmt.Errorf("anlz: beat grid not strictly increasing at beat %d", i)
		}
	}
	return grid, nil
}

func parseSongStructure(s []byte) (*SongStructure, error) {
	if len(s) < 32 {
		return nil, fmt.Errorf("anlz: song structure section truncated")
	}
	entryBytes := be.Uint32(s[12:16])
	entryCount := be.Uint16(s[16:18])
	if entryBytes < 24 {
		return nil, fmt.Errorf("anlz: song structure entry size %d too small", entryBytes)
	}

	// Everything from the mood field onward may be XOR-masked in files the
	// host exports. An implausible mood is the tell; unmasking is the same
	// XOR again.
	body := s[18:]
	if mood := be.Uint16(body[0:2]); mood < uint16(MoodHigh) || mood > uint16(MoodLow) {
		body = append([]byte(nil), body...)
		for i := range body {
			body[i] ^= songMask[i%len(songMask)] + byte(entryCount)
		}
	}

	structure := &SongStructure{
		Mood:    Mood(be.Uint16(body[0:2])),
		EndBeat: be.Uint16(body[8:10]),
		Bank:    body[12],
	}
	if structure.Mood < MoodHigh || structure.Mood > MoodLow {
		return nil, fmt.Errorf("anlz: bad song structure mood %d", structure.Mood)
	}

	entries := body[14:]
	if uint32(len(entries)) < uint32(entryCount)*entryBytes {
		return nil, fmt.Errorf("anlz: song structure claims %d entries beyond section end", entryCount)
	}
	structure.Phrases = make([]Phrase, entryCount)
	for i := uint16(0); i < entryCount; i++ {
		e := entries[uint32(i)*entryBytes:]
		structure.Phrases[i] = Phrase{
			Index:    be.Uint16(e[0:2]),
			Beat:     be.Uint16(e[2:4]),
			Kind:     be.Uint16(e[4:6]),
			K1:       e[7],
			K2:       e[9],
			B:        e[11],
			Beat2:    be.Uint16(e[12:14]),
			Beat3:    be.Uint16(e[14:16]),
			Beat4:    be.Uint16(e[16:18]),
			K3:       e[19],
			Fill:     e[21],
			BeatFill: be.Uint16(e[22:24]),
		}
		if i > 0 && structure.Phrases[i].Beat <= structure.Phrases[i-1].Beat {
			return nil, fmt.Errorf("anlz: phrases not strictly increasing at entry %d", i)
		}
	}
	return structure, nil
}
