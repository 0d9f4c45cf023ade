package outputmodules

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/schollz/beatkeeper/internal/config"
	"github.com/schollz/beatkeeper/internal/types"
)

// Setlist appends a timestamped line to a text file every time the master
// track changes. The file's first line is the set-start UNIX second, so a
// restarted program continues the same set.
type Setlist struct {
	NoOp

	log       *zap.SugaredLogger
	filename  string
	separator string
	startTime int64
	lastTrack *types.TrackInfo
	now       func() int64
}

func NewSetlist(conf *config.Config, log *zap.SugaredLogger) (OutputModule, error) {
	s := &Setlist{
		log:       log,
		filename:  conf.String("filename", "setlist.txt"),
		separator: conf.String("separator", " - "),
		now:       func() int64 { return time.Now().Unix() },
	}

	if file, err := os.Open(s.filename); err == nil {
		scanner := bufio.NewScanner(file)
		var firstLine string
		if scanner.Scan() {
			firstLine = scanner.Text()
		}
		file.Close()

		start, err := strconv.ParseInt(firstLine, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("setlist file %s exists, but is invalid", s.filename)
		}
		s.startTime = start
		log.Infof("Continuing setlist started %s ago", toTimestamp(s.now()-start))
		return s, nil
	}

	log.Info("No setlist file found, starting new setlist")
	s.startTime = s.now()
	file, err := os.Create(s.filename)
	if err != nil {
		return nil, fmt.Errorf("failed to create setlist file: %w", err)
	}
	defer file.Close()
	if _, err := fmt.Fprintf(file, "%d\n", s.startTime); err != nil {
		return nil, fmt.Errorf("failed to write to setlist file: %w", err)
	}
	return s, nil
}

func (s *Setlist) TrackChangedMaster(track types.TrackInfo) {
	if s.lastTrack != nil && *s.lastTrack == track {
		return
	}

	file, err := os.OpenFile(s.filename, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		s.log.Error("Failed to open setlist file for writing!")
		return
	}
	defer file.Close()

	elapsed := s.now() - s.startTime
	if _, err := fmt.Fprintf(file, "%s %s %s %s\n",
		toTimestamp(elapsed), track.Artist, s.separator, track.Title); err != nil {
		s.log.Errorf("Failed to write to setlist file: %v", err)
	}
	copied := track
	s.lastTrack = &copied
}

func toTimestamp(seconds int64) string {
	return fmt.Sprintf("%02d:%02d:%02d", seconds/3600, (seconds%3600)/60, seconds%60)
}
