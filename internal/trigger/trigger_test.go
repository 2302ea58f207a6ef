package trigger

import (
	"bytes"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielpatrickdp/freqtag/go-controller/internal/experr"
)

// fakePort answers reads from reply and records every write.
type fakePort struct {
	reply  *bytes.Reader
	writes [][]byte
	closed bool
}

func newFakePort(reply string) *fakePort {
	return &fakePort{reply: bytes.NewReader([]byte(reply))}
}

func (p *fakePort) Read(b []byte) (int, error) {
	return p.reply.Read(b)
}

func (p *fakePort) Write(b []byte) (int, error) {
	p.writes = append(p.writes, append([]byte(nil), b...))
	return len(b), nil
}

func (p *fakePort) Close() error {
	p.closed = true
	return nil
}

func TestDefaultTable(t *testing.T) {
	tbl := DefaultTable()

	cases := map[string]Code{
		StateEnd:                  10,
		TrialEnd:                  11,
		BlockEnd:                  12,
		ITI:                       13,
		Fixation:                  14,
		Break:                     15,
		ExpEnd:                    255,
		QueryFalse:                21,
		"TWOWORD.NONWORD.F1RIGHT": 35,
		"ONEWORD.NONWORD.F2":      43,
		Mask:                      50,
	}
	for name, want := range cases {
		got, err := tbl.Code(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, got, name)
	}

	c, err := tbl.Lookup("TWOWORD", "PHRASE", "F1LEFT")
	require.NoError(t, err)
	assert.Equal(t, Code(30), c)

	name, ok := tbl.Name(42)
	assert.True(t, ok)
	assert.Equal(t, "ONEWORD.NONWORD.F1", name)

	_, ok = tbl.Name(99)
	assert.False(t, ok)
	assert.Len(t, tbl.Names(), 23)
}

func TestTable_Errors(t *testing.T) {
	_, err := DefaultTable().Code("QUERY.MAYBE")
	assert.ErrorIs(t, err, experr.ErrConfig)

	_, err = NewTable(map[string]Code{"A": 0})
	assert.ErrorIs(t, err, experr.ErrConfig)

	_, err = NewTable(map[string]Code{"A": 3, "B": 3})
	assert.ErrorIs(t, err, experr.ErrConfig)

	_, err = NewTable(map[string]Code{" ": 3})
	assert.ErrorIs(t, err, experr.ErrConfig)
}

func TestLineCommands(t *testing.T) {
	set, unset := lineCommands(10) // bits 1 and 3
	assert.Equal(t, "24", string(set))
	assert.Equal(t, "WR", string(unset))

	set, unset = lineCommands(255)
	assert.Equal(t, "12345678", string(set))
	assert.Equal(t, "QWERTYUI", string(unset))

	set, unset = lineCommands(0)
	assert.Empty(t, set)
	assert.Empty(t, unset)
}

func TestSerial_HandshakeAndSignal(t *testing.T) {
	port := newFakePort("Q")
	s, err := NewSerialFromPort(port, 2*time.Millisecond)
	require.NoError(t, err)

	var slept []time.Duration
	s.sleep = func(d time.Duration) { slept = append(slept, d) }

	require.Len(t, port.writes, 2)
	assert.Equal(t, []byte{cmdPing}, port.writes[0])
	assert.Equal(t, []byte{cmdBinary}, port.writes[1])

	require.NoError(t, s.Signal(13))
	require.NoError(t, s.Signal(0))
	require.Len(t, port.writes, 4)
	assert.Equal(t, "134", string(port.writes[2]))
	assert.Equal(t, "QER", string(port.writes[3]))
	assert.Equal(t, []time.Duration{2 * time.Millisecond}, slept)

	require.NoError(t, s.Close())
	assert.True(t, port.closed)
	require.NoError(t, s.Close())
}

func TestSerial_SignalAfterClose(t *testing.T) {
	port := newFakePort("Q")
	s, err := NewSerialFromPort(port, 0)
	require.NoError(t, err)
	s.sleep = func(time.Duration) {}
	require.NoError(t, s.Close())

	assert.ErrorIs(t, s.Signal(10), experr.ErrLifecycle)
	assert.NoError(t, s.Signal(0))
	assert.Len(t, port.writes, 2)
}

func TestSerial_BadPingClosesPort(t *testing.T) {
	port := newFakePort("X")
	_, err := NewSerialFromPort(port, 0)
	require.Error(t, err)
	assert.True(t, port.closed)

	port = newFakePort("")
	_, err = NewSerialFromPort(port, 0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, io.EOF))
	assert.True(t, port.closed)
}

func TestMock(t *testing.T) {
	m := NewMock()
	require.NoError(t, m.Signal(10))
	require.NoError(t, m.Signal(0))
	require.NoError(t, m.Signal(255))
	assert.Equal(t, []Code{10, 255}, m.Codes())

	boom := errors.New("unplugged")
	m.FailWith(boom)
	assert.ErrorIs(t, m.Signal(11), boom)

	require.NoError(t, m.Close())
	assert.True(t, m.Closed())
}

var _ Port = (*Serial)(nil)
var _ Port = (*Mock)(nil)
