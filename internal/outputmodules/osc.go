package outputmodules

import (
	"fmt"
	"math"
	"net"
	"strconv"

	"github.com/hypebeast/go-osc/osc"
	"go.uber.org/zap"

	"github.com/schollz/beatkeeper/internal/anlz"
	"github.com/schollz/beatkeeper/internal/config"
	"github.com/schollz/beatkeeper/internal/types"
)

type phraseFormat int

const (
	phraseAsString phraseFormat = iota
	phraseAsInt
	phraseAsFloat
)

// messageToggles selects which of the high-rate channels actually go out
// on the wire. Master channels default on, per-deck channels default off.
type messageToggles struct {
	beat           bool
	beatDiv1       bool
	beatDiv2       bool
	beatDiv4       bool
	beatMaster     bool
	beatMasterDiv1 bool
	beatMasterDiv2 bool
	beatMasterDiv4 bool
	time           bool
	timeMaster     bool
	phrase         bool
	phraseMaster   bool
	phraseFormat   phraseFormat
}

func readMessageToggles(conf *config.Config, log *zap.SugaredLogger) messageToggles {
	t := messageToggles{
		beat:           conf.Bool("msg.beat", false),
		beatDiv1:       conf.Bool("msg.beat.div_1", false),
		beatDiv2:       conf.Bool("msg.beat.div_2", false),
		beatDiv4:       conf.Bool("msg.beat.div_4", false),
		beatMaster:     conf.Bool("msg.beat_master", true),
		beatMasterDiv1: conf.Bool("msg.beat_master.div_1", false),
		beatMasterDiv2: conf.Bool("msg.beat_master.div_2", false),
		beatMasterDiv4: conf.Bool("msg.beat_master.div_4", false),
		time:           conf.Bool("msg.time", false),
		timeMaster:     conf.Bool("msg.time_master", true),
		phrase:         conf.Bool("msg.phrase", false),
		phraseMaster:   conf.Bool("msg.phrase_master", true),
	}
	switch format := conf.String("phrase_output_format", "string"); format {
	case "string":
		t.phraseFormat = phraseAsString
	case "int":
		t.phraseFormat = phraseAsInt
	case "float":
		t.phraseFormat = phraseAsFloat
	default:
		log.Errorf("Unknown phrase output format: %s", format)
		t.phraseFormat = phraseAsString
	}
	return t
}

// OSC emits address/value UDP packets on the field callbacks. The
// high-rate channels (beat, time) are sub-sampled by send_every_nth.
type OSC struct {
	NoOp

	client      *osc.Client
	log         *zap.SugaredLogger
	toggles     messageToggles
	source      string
	destination string
	sendPeriod  int
	counter     int
	infoSent    bool
}

// NewOSC binds the source address and connects the destination.
func NewOSC(conf *config.Config, log *zap.SugaredLogger) (OutputModule, error) {
	source := conf.String("source", "127.0.0.1:8888")
	destination := conf.String("destination", "127.0.0.1:9999")

	destHost, destPort, err := splitAddr(destination)
	if err != nil {
		return nil, fmt.Errorf("bad destination %q: %w", destination, err)
	}
	srcHost, srcPort, err := splitAddr(source)
	if err != nil {
		return nil, fmt.Errorf("bad source %q: %w", source, err)
	}

	client := osc.NewClient(destHost, destPort)
	if err := client.SetLocalAddr(srcHost, srcPort); err != nil {
		return nil, fmt.Errorf("failed to open source socket: %w", err)
	}

	sendPeriod := conf.Int("send_every_nth", 2)
	if sendPeriod < 1 {
		sendPeriod = 1
	}

	return &OSC{
		client:      client,
		log:         log,
		toggles:     readMessageToggles(conf, log),
		source:      source,
		destination: destination,
		sendPeriod:  sendPeriod,
	}, nil
}

func splitAddr(addr string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0, err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, err
	}
	return host, port, nil
}

func (o *OSC) send(msg *osc.Message) {
	if err := o.client.Send(msg); err != nil {
		o.log.Errorf("Failed to send OSC message: %v", err)
	}
}

func (o *OSC) sendFloat(addr string, value float32) {
	o.send(osc.NewMessage(addr, value))
}

func (o *OSC) sendString(addr string, value string) {
	o.send(osc.NewMessage(addr, value))
}

func (o *OSC) sendInt(addr string, value int32) {
	o.send(osc.NewMessage(addr, value))
}

func (o *OSC) sendPhrase(addr string, phrase string) {
	switch o.toggles.phraseFormat {
	case phraseAsString:
		o.sendString(addr, phrase)
	case phraseAsInt:
		o.sendInt(addr, anlz.PhraseNameToIndex(phrase))
	case phraseAsFloat:
		o.sendFloat(addr, float32(anlz.PhraseNameToIndex(phrase)))
	}
}

func (o *OSC) PreUpdate() {
	o.counter = (o.counter + 1) % o.sendPeriod
}

func (o *OSC) SlowUpdate() {
	if !o.infoSent {
		o.infoSent = true
		o.log.Infof("Sending %s -> %s", o.source, o.destination)
	}
}

func (o *OSC) BPMChanged(bpm float32, deck int) {
	o.sendFloat(fmt.Sprintf("/bpm/%d/current", deck), bpm)
}

func (o *OSC) BPMChangedMaster(bpm float32) {
	o.sendFloat("/bpm/master/current", bpm)
}

func (o *OSC) OriginalBPMChangedMaster(bpm float32) {
	o.sendFloat("/bpm/master/original", bpm)
}

func (o *OSC) BeatUpdate(beat float32, deck int) {
	if o.counter != 0 {
		return
	}
	if o.toggles.beat {
		o.sendFloat(fmt.Sprintf("/beat/%d", deck), beat)
	}
	if o.toggles.beatDiv1 {
		o.sendFloat(fmt.Sprintf("/beat/%d/div1", deck), mod(beat, 1))
	}
	if o.toggles.beatDiv2 {
		o.sendFloat(fmt.Sprintf("/beat/%d/div2", deck), mod(beat, 2))
	}
	if o.toggles.beatDiv4 {
		o.sendFloat(fmt.Sprintf("/beat/%d/div4", deck), mod(beat, 4))
	}
}

func (o *OSC) BeatUpdateMaster(beat float32) {
	if o.counter != 0 {
		return
	}
	if o.toggles.beatMaster {
		o.sendFloat("/beat/master", beat)
	}
	if o.toggles.beatMasterDiv1 {
		o.sendFloat("/beat/master/div1", mod(beat, 1))
	}
	if o.toggles.beatMasterDiv2 {
		o.sendFloat("/beat/master/div2", mod(beat, 2)/2)
	}
	if o.toggles.beatMasterDiv4 {
		o.sendFloat("/beat/master/div4", mod(beat, 4)/4)
	}
}

func (o *OSC) TimeUpdate(seconds float32, deck int) {
	if o.counter != 0 {
		return
	}
	if o.toggles.time {
		o.sendFloat(fmt.Sprintf("/time/%d", deck), seconds)
	}
}

func (o *OSC) TimeUpdateMaster(seconds float32) {
	if o.counter != 0 {
		return
	}
	if o.toggles.timeMaster {
		o.sendFloat("/time/master", seconds)
	}
}

func (o *OSC) TrackChanged(track types.TrackInfo, deck int) {
	o.sendString(fmt.Sprintf("/track/%d/title", deck), track.Title)
	o.sendString(fmt.Sprintf("/track/%d/artist", deck), track.Artist)
	o.sendString(fmt.Sprintf("/track/%d/album", deck), track.Album)
}

func (o *OSC) TrackChangedMaster(track types.TrackInfo) {
	o.sendString("/track/master/title", track.Title)
	o.sendString("/track/master/artist", track.Artist)
	o.sendString("/track/master/album", track.Album)
}

func (o *OSC) AnlzPathChanged(path string, deck int) {
	o.sendString(fmt.Sprintf("/track/%d/anlz_path", deck), path)
}

func (o *OSC) MasterdeckIndexChanged(index int) {
	o.sendInt("/masterdeck/index", int32(index))
}

func (o *OSC) PhraseChanged(phrase string, deck int) {
	if o.toggles.phrase {
		o.sendPhrase(fmt.Sprintf("/phrase/%d/current", deck), phrase)
	}
}

func (o *OSC) PhraseChangedMaster(phrase string) {
	if o.toggles.phraseMaster {
		o.sendPhrase("/phrase/master/current", phrase)
	}
}

func (o *OSC) NextPhraseChanged(phrase string, deck int) {
	if o.toggles.phrase {
		o.sendPhrase(fmt.Sprintf("/phrase/%d/next", deck), phrase)
	}
}

func (o *OSC) NextPhraseChangedMaster(phrase string) {
	if o.toggles.phraseMaster {
		o.sendPhrase("/phrase/master/next", phrase)
	}
}

func (o *OSC) NextPhraseIn(beats int32, deck int) {
	if o.toggles.phrase {
		o.sendFloat(fmt.Sprintf("/phrase/%d/countin", deck), float32(beats))
	}
}

func (o *OSC) NextPhraseInMaster(beats int32) {
	if o.toggles.phraseMaster {
		o.sendFloat("/phrase/master/countin", float32(beats))
	}
}

// mod is a float remainder kept in [0, k) for the beat divisions.
func mod(v, k float32) float32 {
	m := float32(math.Mod(float64(v), float64(k)))
	if m < 0 {
		m += k
	}
	return m
}
