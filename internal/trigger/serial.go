package trigger

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"go.bug.st/serial"

	"github.com/danielpatrickdp/freqtag/go-controller/internal/experr"
	"github.com/danielpatrickdp/freqtag/go-controller/internal/logger"
)

// #region protocol
const (
	cmdPing   = 0x27 // '
	cmdBinary = 0x5C // \
	pingReply = 'Q'

	// DefaultBaud is the DLP-IO8-G's factory rate.
	DefaultBaud = 115200
	// DefaultPulse is how long lines stay high before they are released.
	DefaultPulse = 5 * time.Millisecond

	pingTimeout = time.Second
)

// setChars raise lines 1..8; unsetChars lower them.
var (
	setChars   = [8]byte{'1', '2', '3', '4', '5', '6', '7', '8'}
	unsetChars = [8]byte{'Q', 'W', 'E', 'R', 'T', 'Y', 'U', 'I'}
)

// lineCommands encodes code as the set and unset command strings, one line per bit.
func lineCommands(code Code) (set, unset []byte) {
	for bit := 0; bit < 8; bit++ {
		if code&(1<<bit) != 0 {
			set = append(set, setChars[bit])
			unset = append(unset, unsetChars[bit])
		}
	}
	return set, unset
}

// #endregion protocol

// #region serial
// Serial drives a DLP-IO8-G USB I/O module whose eight digital lines are wired
// to the amplifier's trigger input.
type Serial struct {
	mu    sync.Mutex
	port  io.ReadWriteCloser
	pulse time.Duration
	sleep func(time.Duration)
	log   *log.Logger
}

// Open connects to device, checks the ping reply and switches to binary mode.
func Open(device string, baud int, pulse time.Duration) (*Serial, error) {
	if baud <= 0 {
		baud = DefaultBaud
	}
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(device, mode)
	if err != nil {
		return nil, fmt.Errorf("open trigger port %s: %w", device, err)
	}
	if err := port.SetReadTimeout(pingTimeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("set read timeout: %w", err)
	}
	s, err := NewSerialFromPort(port, pulse)
	if err != nil {
		return nil, fmt.Errorf("trigger port %s: %w", device, err)
	}
	s.log.Info("trigger port ready", "device", device, "baud", baud, "pulse", s.pulse)
	return s, nil
}

// NewSerialFromPort runs the handshake over an already open stream.
// The stream is closed when the handshake fails.
func NewSerialFromPort(port io.ReadWriteCloser, pulse time.Duration) (*Serial, error) {
	if pulse <= 0 {
		pulse = DefaultPulse
	}
	s := &Serial{
		port:  port,
		pulse: pulse,
		sleep: time.Sleep,
		log:   logger.NewComponent("trigger"),
	}
	if err := s.Ping(); err != nil {
		port.Close()
		return nil, err
	}
	if _, err := port.Write([]byte{cmdBinary}); err != nil {
		port.Close()
		return nil, fmt.Errorf("enter binary mode: %w", err)
	}
	return s, nil
}

// Ping checks the device answers 'Q'.
func (s *Serial) Ping() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.port.Write([]byte{cmdPing}); err != nil {
		return fmt.Errorf("write ping: %w", err)
	}
	buf := make([]byte, 1)
	n, err := s.port.Read(buf)
	if err != nil {
		return fmt.Errorf("read ping reply: %w", err)
	}
	if n != 1 || buf[0] != pingReply {
		return fmt.Errorf("device did not answer ping (got %q)", buf[:n])
	}
	return nil
}

// Signal raises the lines of code, holds them for the pulse width, then lowers them.
// Code 0 is a no-op.
func (s *Serial) Signal(code Code) error {
	if code == 0 {
		return nil
	}
	set, unset := lineCommands(code)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.port == nil {
		return experr.Lifecyclef("trigger %d sent on a closed port", code)
	}
	if _, err := s.port.Write(set); err != nil {
		return fmt.Errorf("set trigger %d: %w", code, err)
	}
	s.sleep(s.pulse)
	if _, err := s.port.Write(unset); err != nil {
		return fmt.Errorf("unset trigger %d: %w", code, err)
	}
	s.log.Debug("trigger", "code", code)
	return nil
}

// Close releases the underlying port.
func (s *Serial) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.port == nil {
		return nil
	}
	err := s.port.Close()
	s.port = nil
	return err
}

// #endregion serial

// #region discovery
// ListPorts returns the serial devices visible to the OS.
func ListPorts() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("list serial ports: %w", err)
	}
	return ports, nil
}

// #endregion discovery
