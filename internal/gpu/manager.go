// Package gpu discovers compute devices across the compiled-in drivers and
// selects the one a benchmark runs on.
package gpu

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/fxnlabs/kernelbench/internal/accel"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// ErrNoDevice is returned when no driver exposes a usable device.
var ErrNoDevice = errors.New("no compute device found")

// Preference steers device selection towards a device class.
type Preference string

const (
	PreferAuto Preference = "auto"
	PreferGPU  Preference = "gpu"
	PreferCPU  Preference = "cpu"
)

// ParsePreference validates a preference string. The empty string means auto.
func ParsePreference(s string) (Preference, error) {
	switch p := Preference(strings.ToLower(strings.TrimSpace(s))); p {
	case "", PreferAuto:
		return PreferAuto, nil
	case PreferGPU, PreferCPU:
		return p, nil
	}
	return "", fmt.Errorf("unknown device preference %q (want auto, gpu or cpu)", s)
}

// Selection is one device together with the platform and driver exposing it.
type Selection struct {
	Driver       string
	Platform     accel.Platform
	PlatformInfo accel.PlatformInfo
	Device       accel.Device
	DeviceInfo   accel.DeviceInfo
}

// PlatformListing is a platform and all of its devices.
type PlatformListing struct {
	Driver   string
	Platform accel.Platform
	Info     accel.PlatformInfo
	Devices  []Selection
}

// Manager handles device discovery across drivers and picks the device a
// run executes on.
type Manager struct {
	drivers []accel.Driver
	logger  *zap.Logger

	mu       sync.RWMutex
	listings []PlatformListing
}

// NewManager creates a manager over drivers given in preference order.
func NewManager(logger *zap.Logger, drivers ...accel.Driver) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		drivers: drivers,
		logger:  logger.Named("gpu"),
	}
}

// Enumerate queries every driver once and caches the result. A driver that
// fails is skipped; its error is returned only when no driver produced a
// platform.
func (m *Manager) Enumerate() ([]PlatformListing, error) {
	m.mu.RLock()
	cached := m.listings
	m.mu.RUnlock()
	if cached != nil {
		return cached, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listings != nil {
		return m.listings, nil
	}

	var (
		listings []PlatformListing
		errs     error
	)
	for _, drv := range m.drivers {
		platforms, err := drv.Platforms()
		if err != nil {
			m.logger.Warn("driver enumeration failed", zap.String("driver", drv.Name()), zap.Error(err))
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", drv.Name(), err))
			continue
		}
		for _, p := range platforms {
			listing := PlatformListing{Driver: drv.Name(), Platform: p, Info: p.Info()}
			devices, err := p.Devices()
			if err != nil {
				m.logger.Warn("device query failed", zap.String("platform", listing.Info.Name), zap.Error(err))
				errs = multierr.Append(errs, fmt.Errorf("%s: %w", listing.Info.Name, err))
			}
			for _, d := range devices {
				listing.Devices = append(listing.Devices, Selection{
					Driver:       drv.Name(),
					Platform:     p,
					PlatformInfo: listing.Info,
					Device:       d,
					DeviceInfo:   d.Info(),
				})
			}
			listings = append(listings, listing)
		}
	}
	if len(listings) == 0 && errs != nil {
		return nil, errs
	}
	m.listings = listings
	m.logger.Debug("enumerated platforms", zap.Int("platforms", len(listings)))
	return listings, nil
}

// rank orders devices for selection; lower is better.
func rank(t accel.DeviceType, pref Preference) int {
	accelerator := t&(accel.DeviceTypeGPU|accel.DeviceTypeAccelerator) != 0
	cpu := t&accel.DeviceTypeCPU != 0
	switch {
	case pref == PreferGPU && accelerator, pref == PreferCPU && cpu:
		return 0
	case accelerator:
		return 1
	case cpu:
		return 2
	}
	return 3
}

// Select picks a device: the preferred class first, then GPU or
// accelerator devices, then CPU devices, then whatever was found first.
func (m *Manager) Select(pref Preference) (Selection, error) {
	listings, err := m.Enumerate()
	if err != nil {
		return Selection{}, err
	}
	best, bestRank := Selection{}, -1
	for _, l := range listings {
		for _, d := range l.Devices {
			r := rank(d.DeviceInfo.Type, pref)
			if bestRank < 0 || r < bestRank {
				best, bestRank = d, r
			}
		}
	}
	if bestRank < 0 {
		return Selection{}, ErrNoDevice
	}
	m.logger.Info("selected device",
		zap.String("driver", best.Driver),
		zap.String("platform", best.PlatformInfo.Name),
		zap.String("device", best.DeviceInfo.Name),
		zap.Stringer("type", best.DeviceInfo.Type),
		zap.String("preference", string(pref)),
	)
	return best, nil
}
