package hardware

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Backend identifiers returned by Detect.
const (
	TypeWittyPi4     = "wittypi4"
	TypeRaspberryPi5 = "raspberrypi5"
)

var deviceTreeModelPath = "/proc/device-tree/model"

// Detect probes for supported power management hardware and returns its
// identifier, or "" when none is found. The WittyPi board is checked first:
// a Pi 5 with a WittyPi attached should use the add-on board.
func Detect(bus, addr int, logger *slog.Logger) string {
	if conn, err := openI2C(bus, addr); err == nil {
		id, err := conn.ReadReg(regID)
		_ = conn.Close()
		if err == nil && id == wittyPiFirmwareID {
			logger.Info("detected WittyPi 4", "bus", bus, "addr", addr)
			return TypeWittyPi4
		}
	}

	if model, err := os.ReadFile(deviceTreeModelPath); err == nil &&
		strings.Contains(string(model), "Raspberry Pi 5") {
		if _, err = os.Stat(filepath.Join(defaultRTCSysfsPath, "wakealarm")); err == nil {
			logger.Info("detected Raspberry Pi 5 onboard RTC")
			return TypeRaspberryPi5
		}
	}

	return ""
}

// Open constructs the backend for a detected or overridden hardware type.
func Open(hardwareType string, bus, addr int, logger *slog.Logger) (PowerManager, error) {
	switch hardwareType {
	case TypeWittyPi4:
		return NewWittyPi4(bus, addr, logger.With("backend", TypeWittyPi4))
	case TypeRaspberryPi5:
		return NewRaspberryPi5(logger.With("backend", TypeRaspberryPi5))
	default:
		return nil, ErrUnavailable
	}
}
