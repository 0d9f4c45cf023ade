package outputmodules

import (
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	"github.com/schollz/beatkeeper/internal/config"
	"github.com/schollz/beatkeeper/internal/types"
)

// Deckview renders a live per-deck table in the terminal. The keeper's
// callbacks only write into a small locked state struct; the bubbletea
// program reads it back on its own refresh ticks, so the scheduler never
// waits on the terminal.
type Deckview struct {
	NoOp

	mu     sync.Mutex
	decks  [4]deckState
	master int

	program *tea.Program
}

type deckState struct {
	bpm          float32
	originalBPM  float32
	beat         float32
	seconds      float32
	phrase       string
	nextPhrase   string
	nextPhraseIn int32
	track        types.TrackInfo
}

func NewDeckview(conf *config.Config, log *zap.SugaredLogger) (OutputModule, error) {
	fps := conf.Int("fps", 10)
	if fps < 1 {
		fps = 1
	}
	if fps > 60 {
		fps = 60
	}

	d := &Deckview{master: -1}

	columns := []table.Column{
		{Title: "Deck", Width: 6},
		{Title: "BPM", Width: 7},
		{Title: "Beat", Width: 6},
		{Title: "Time", Width: 9},
		{Title: "Phrase", Width: 9},
		{Title: "Next", Width: 14},
		{Title: "Track", Width: 34},
	}
	t := table.New(table.WithColumns(columns), table.WithHeight(4))
	styles := table.DefaultStyles()
	styles.Selected = styles.Cell
	t.SetStyles(styles)

	d.program = tea.NewProgram(deckviewModel{view: d, table: t, fps: fps}, tea.WithAltScreen())
	go func() {
		if _, err := d.program.Run(); err != nil {
			log.Errorf("Deck view stopped: %v", err)
		}
	}()

	return d, nil
}

func (d *Deckview) BPMChanged(bpm float32, deck int) {
	d.withDeck(deck, func(s *deckState) { s.bpm = bpm })
}

func (d *Deckview) OriginalBPMChanged(bpm float32, deck int) {
	d.withDeck(deck, func(s *deckState) { s.originalBPM = bpm })
}

func (d *Deckview) BeatUpdate(beat float32, deck int) {
	d.withDeck(deck, func(s *deckState) { s.beat = beat })
}

func (d *Deckview) TimeUpdate(seconds float32, deck int) {
	d.withDeck(deck, func(s *deckState) { s.seconds = seconds })
}

func (d *Deckview) PhraseChanged(phrase string, deck int) {
	d.withDeck(deck, func(s *deckState) { s.phrase = phrase })
}

func (d *Deckview) NextPhraseChanged(phrase string, deck int) {
	d.withDeck(deck, func(s *deckState) { s.nextPhrase = phrase })
}

func (d *Deckview) NextPhraseIn(beats int32, deck int) {
	d.withDeck(deck, func(s *deckState) { s.nextPhraseIn = beats })
}

func (d *Deckview) TrackChanged(track types.TrackInfo, deck int) {
	d.withDeck(deck, func(s *deckState) { s.track = track })
}

func (d *Deckview) MasterdeckIndexChanged(index int) {
	d.mu.Lock()
	d.master = index
	d.mu.Unlock()
}

func (d *Deckview) withDeck(deck int, f func(*deckState)) {
	if deck < 0 || deck >= len(d.decks) {
		return
	}
	d.mu.Lock()
	f(&d.decks[deck])
	d.mu.Unlock()
}

func (d *Deckview) snapshot() ([4]deckState, int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.decks, d.master
}

type refreshMsg time.Time

type deckviewModel struct {
	view  *Deckview
	table table.Model
	fps   int
}

func (m deckviewModel) tick() tea.Cmd {
	return tea.Tick(time.Second/time.Duration(m.fps), func(t time.Time) tea.Msg {
		return refreshMsg(t)
	})
}

func (m deckviewModel) Init() tea.Cmd {
	return m.tick()
}

func (m deckviewModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}
	case refreshMsg:
		decks, master := m.view.snapshot()
		rows := make([]table.Row, len(decks))
		for i, s := range decks {
			marker := fmt.Sprintf("%d", i)
			if i == master {
				marker += " *"
			}
			next := s.nextPhrase
			if next != "" {
				next = fmt.Sprintf("%s in %d", next, s.nextPhraseIn)
			}
			track := s.track.Title
			if s.track.Artist != "" {
				track = s.track.Artist + " - " + track
			}
			rows[i] = table.Row{
				marker,
				fmt.Sprintf("%.1f", s.bpm),
				fmt.Sprintf("%.2f", s.beat),
				fmt.Sprintf("%02d:%05.2f", int(s.seconds)/60, float64(s.seconds)-float64(int(s.seconds)/60*60)),
				s.phrase,
				next,
				track,
			}
		}
		m.table.SetRows(rows)
		return m, m.tick()
	}
	return m, nil
}

var deckviewFrame = lipgloss.NewStyle().
	BorderStyle(lipgloss.RoundedBorder()).
	Padding(0, 1)

func (m deckviewModel) View() string {
	return deckviewFrame.Render(m.table.View()) + "\n q: quit view\n"
}
