package outputmodules

import (
	"bytes"
	"net"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/schollz/beatkeeper/internal/config"
	"github.com/schollz/beatkeeper/internal/types"
)

// oscReceiver is a raw UDP sink; assertions match on the address strings
// embedded in the packets.
type oscReceiver struct {
	conn net.PacketConn
}

func newOSCReceiver(t *testing.T) *oscReceiver {
	t.Helper()
	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return &oscReceiver{conn: conn}
}

func (r *oscReceiver) addr() string {
	return r.conn.LocalAddr().String()
}

// recv returns the next packet, or nil on timeout.
func (r *oscReceiver) recv(timeout time.Duration) []byte {
	buf := make([]byte, 2048)
	r.conn.SetReadDeadline(time.Now().Add(timeout))
	n, _, err := r.conn.ReadFrom(buf)
	if err != nil {
		return nil
	}
	return buf[:n]
}

func newTestOSC(t *testing.T, r *oscReceiver, settings map[string]any) *OSC {
	t.Helper()
	v := viper.New()
	v.Set("osc.source", "127.0.0.1:0")
	v.Set("osc.destination", r.addr())
	for key, value := range settings {
		v.Set("osc."+key, value)
	}
	m, err := NewOSC(config.New(v).Sub("osc"), zap.NewNop().Sugar())
	require.NoError(t, err)
	return m.(*OSC)
}

func TestOSCSendsBPMMaster(t *testing.T) {
	r := newOSCReceiver(t)
	o := newTestOSC(t, r, nil)

	o.BPMChangedMaster(128)
	packet := r.recv(time.Second)
	require.NotNil(t, packet)
	assert.True(t, bytes.Contains(packet, []byte("/bpm/master/current")))
}

func TestOSCThrottlesBeatChannels(t *testing.T) {
	r := newOSCReceiver(t)
	o := newTestOSC(t, r, map[string]any{"send_every_nth": 2})

	// counter becomes 1: beat ticks are suppressed.
	o.PreUpdate()
	o.BeatUpdateMaster(1.5)
	assert.Nil(t, r.recv(100*time.Millisecond))

	// counter wraps to 0: beat ticks go out.
	o.PreUpdate()
	o.BeatUpdateMaster(1.5)
	packet := r.recv(time.Second)
	require.NotNil(t, packet)
	assert.True(t, bytes.Contains(packet, []byte("/beat/master")))

	// Low-rate channels are never throttled.
	o.PreUpdate()
	o.BPMChangedMaster(120)
	assert.NotNil(t, r.recv(time.Second))
}

func TestOSCBeatDivisions(t *testing.T) {
	r := newOSCReceiver(t)
	o := newTestOSC(t, r, map[string]any{
		"send_every_nth":        1,
		"msg.beat_master":       false,
		"msg.beat_master.div_2": true,
	})

	o.BeatUpdateMaster(3.0)
	packet := r.recv(time.Second)
	require.NotNil(t, packet)
	assert.True(t, bytes.Contains(packet, []byte("/beat/master/div2")))
	// (3 mod 2) / 2 = 0.5
	assert.True(t, bytes.Contains(packet, []byte{0x3F, 0x00, 0x00, 0x00}))
	// The plain beat channel is toggled off.
	assert.Nil(t, r.recv(100*time.Millisecond))
}

func TestOSCDeckChannelsDefaultOff(t *testing.T) {
	r := newOSCReceiver(t)
	o := newTestOSC(t, r, map[string]any{"send_every_nth": 1})

	o.BeatUpdate(1.0, 0)
	o.TimeUpdate(10, 0)
	assert.Nil(t, r.recv(100*time.Millisecond))

	// BPM per deck has no toggle and always goes out.
	o.BPMChanged(120, 1)
	packet := r.recv(time.Second)
	require.NotNil(t, packet)
	assert.True(t, bytes.Contains(packet, []byte("/bpm/1/current")))
}

func TestOSCTrackChanged(t *testing.T) {
	r := newOSCReceiver(t)
	o := newTestOSC(t, r, nil)

	o.TrackChangedMaster(types.TrackInfo{Title: "Xtal", Artist: "Aphex Twin", Album: "SAW"})
	for _, want := range []string{"/track/master/title", "/track/master/artist", "/track/master/album"} {
		packet := r.recv(time.Second)
		require.NotNil(t, packet, "missing %s", want)
		assert.True(t, bytes.Contains(packet, []byte(want)))
	}
}

func TestOSCPhraseFormats(t *testing.T) {
	r := newOSCReceiver(t)
	o := newTestOSC(t, r, map[string]any{"phrase_output_format": "int"})

	o.PhraseChangedMaster("Chorus")
	packet := r.recv(time.Second)
	require.NotNil(t, packet)
	assert.True(t, bytes.Contains(packet, []byte("/phrase/master/current")))
	// int32 9, big-endian, after the ,i type tag
	assert.True(t, bytes.Contains(packet, []byte{0x00, 0x00, 0x00, 0x09}))
	assert.False(t, bytes.Contains(packet, []byte("Chorus")))
}

func TestOSCMasterdeckIndex(t *testing.T) {
	r := newOSCReceiver(t)
	o := newTestOSC(t, r, nil)

	o.MasterdeckIndexChanged(2)
	packet := r.recv(time.Second)
	require.NotNil(t, packet)
	assert.True(t, bytes.Contains(packet, []byte("/masterdeck/index")))
}

func TestOSCBadDestination(t *testing.T) {
	v := viper.New()
	v.Set("osc.destination", "not-an-address")
	_, err := NewOSC(config.New(v).Sub("osc"), zap.NewNop().Sugar())
	assert.Error(t, err)
}
