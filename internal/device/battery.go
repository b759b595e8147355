package device

import (
	"context"
	"errors"
	"math/rand"
	"runtime"
	"sync"
	"time"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"

	appLog "inkdash/internal/log"
)

// BatteryStatus is what the dashboard header shows about the tablet's power.
type BatteryStatus struct {
	// Percent is the charge level, 0-100.
	Percent int `json:"percent"`
	// VoltageMv is the battery voltage in millivolts, 0 when unknown.
	VoltageMv int `json:"voltage_mv"`
	// Level buckets Percent for the status icon.
	Level string `json:"level"`
	// Simulated is true when no hardware controller answered.
	Simulated bool      `json:"simulated"`
	ReadAt    time.Time `json:"read_at"`
}

// Level thresholds for the status icon.
const (
	LevelOK       = "ok"
	LevelLow      = "low"
	LevelCritical = "critical"
)

// LevelFor buckets a percentage.
func LevelFor(percent int) string {
	switch {
	case percent <= 10:
		return LevelCritical
	case percent <= 25:
		return LevelLow
	default:
		return LevelOK
	}
}

// BatteryReader abstracts how battery information is obtained.
type BatteryReader interface {
	Read(ctx context.Context) (BatteryStatus, error)
}

// PiSugar-style controller registers.
const (
	regVoltageHigh = 0x22
	regVoltageLow  = 0x23
	regPercent     = 0x2A

	DefaultI2CAddr = 0x57
)

var hostInit = sync.OnceValue(func() error {
	_, err := host.Init()
	return err
})

// I2CReader reads a PiSugar-style battery controller over I²C.
type I2CReader struct {
	Bus  string // "" picks the first bus
	Addr uint16
}

// Read implements BatteryReader.
func (r *I2CReader) Read(_ context.Context) (BatteryStatus, error) {
	if runtime.GOOS != "linux" {
		return BatteryStatus{}, errors.New("device: i2c unavailable on " + runtime.GOOS)
	}
	if err := hostInit(); err != nil {
		return BatteryStatus{}, err
	}

	bus, err := i2creg.Open(r.Bus)
	if err != nil {
		return BatteryStatus{}, err
	}
	defer bus.Close()

	dev := &i2c.Dev{Bus: bus, Addr: r.Addr}
	readReg := func(reg byte) (byte, error) {
		buf := []byte{0}
		if err := dev.Tx([]byte{reg}, buf); err != nil {
			return 0, err
		}
		return buf[0], nil
	}

	high, err := readReg(regVoltageHigh)
	if err != nil {
		return BatteryStatus{}, err
	}
	low, err := readReg(regVoltageLow)
	if err != nil {
		return BatteryStatus{}, err
	}
	pct, err := readReg(regPercent)
	if err != nil {
		return BatteryStatus{}, err
	}

	return newStatus(int(pct), int(uint16(high)<<8|uint16(low)), false), nil
}

// SimulatedReader stands in off-device. It drains slowly from Start and
// wraps back to full, which is enough to exercise the UI states.
type SimulatedReader struct {
	Start int
	Now   func() time.Time

	once  sync.Once
	began time.Time
}

// NewSimulatedReader starts somewhere between 40% and 100%.
func NewSimulatedReader() *SimulatedReader {
	return &SimulatedReader{Start: 40 + rand.Intn(61)}
}

// Read implements BatteryReader.
func (s *SimulatedReader) Read(_ context.Context) (BatteryStatus, error) {
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	s.once.Do(func() { s.began = now() })

	drained := int(now().Sub(s.began) / (10 * time.Minute))
	pct := s.Start - drained%(s.Start+1)
	return newStatus(pct, 0, true), nil
}

func newStatus(pct, mv int, simulated bool) BatteryStatus {
	if pct > 100 {
		pct = 100
	}
	if pct < 0 {
		pct = 0
	}
	return BatteryStatus{
		Percent:   pct,
		VoltageMv: mv,
		Level:     LevelFor(pct),
		Simulated: simulated,
		ReadAt:    time.Now(),
	}
}

// DefaultBatteryReader probes the I²C controller once and falls back to a
// simulated reader when nothing answers.
func DefaultBatteryReader(ctx context.Context) BatteryReader {
	if runtime.GOOS != "linux" {
		return NewSimulatedReader()
	}
	r := &I2CReader{Addr: DefaultI2CAddr}
	if _, err := r.Read(ctx); err != nil {
		appLog.Info("battery controller not found; using simulated reader", "reason", err)
		return NewSimulatedReader()
	}
	return r
}

// CachedReader serves a recent reading instead of hitting the bus on every
// request.
type CachedReader struct {
	Reader BatteryReader
	TTL    time.Duration

	mu     sync.RWMutex
	last   BatteryStatus
	readAt time.Time
}

// Read implements BatteryReader.
func (c *CachedReader) Read(ctx context.Context) (BatteryStatus, error) {
	c.mu.RLock()
	last, at := c.last, c.readAt
	c.mu.RUnlock()
	if !at.IsZero() && time.Since(at) < c.TTL {
		return last, nil
	}

	st, err := c.Reader.Read(ctx)
	if err != nil {
		return BatteryStatus{}, err
	}
	c.mu.Lock()
	c.last, c.readAt = st, time.Now()
	c.mu.Unlock()
	return st, nil
}
