package hardware

import (
	"fmt"
	"io"
	"os"

	"golang.org/x/sys/unix"
)

// I2C_SLAVE ioctl, see linux/i2c-dev.h.
const i2cSlave = 0x0703

// smbus is the register-level access the WittyPi backend needs. The real
// implementation talks to /dev/i2c-N; tests substitute an in-memory
// register file.
type smbus interface {
	ReadReg(reg uint8) (uint8, error)
	WriteReg(reg uint8, value uint8) error
	ReadWord(reg uint8) (uint16, error)
	Close() error
}

type i2cBus struct {
	f *os.File
}

func openI2C(bus, addr int) (*i2cBus, error) {
	f, err := os.OpenFile(fmt.Sprintf("/dev/i2c-%d", bus), os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnavailable, err)
	}
	if err = unix.IoctlSetInt(int(f.Fd()), i2cSlave, addr); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("%w: selecting address 0x%02x: %s", ErrUnavailable, addr, err)
	}
	return &i2cBus{f: f}, nil
}

func (b *i2cBus) ReadReg(reg uint8) (uint8, error) {
	if _, err := b.f.Write([]byte{reg}); err != nil {
		return 0, err
	}
	var buf [1]byte
	if _, err := io.ReadFull(b.f, buf[:]); err != nil {
		return 0, err
	}
	return buf[0], nil
}

func (b *i2cBus) WriteReg(reg uint8, value uint8) error {
	_, err := b.f.Write([]byte{reg, value})
	return err
}

func (b *i2cBus) ReadWord(reg uint8) (uint16, error) {
	if _, err := b.f.Write([]byte{reg}); err != nil {
		return 0, err
	}
	var buf [2]byte
	if _, err := io.ReadFull(b.f, buf[:]); err != nil {
		return 0, err
	}
	return uint16(buf[0]) | uint16(buf[1])<<8, nil
}

func (b *i2cBus) Close() error {
	return b.f.Close()
}
