package device

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"

	"github.com/beeper/ledger-installer/internal/ledger"
)

const (
	claDashboard = 0xe0

	insGetVersion     = 0x01
	insListAppsFirst  = 0xde
	insListAppsNext   = 0xdf
	listAppsFormatV1  = 0x01
	appEntryHashBytes = 32
)

var errShortResponse = errors.New("response too short")

func apdu(ins byte) []byte {
	return []byte{claDashboard, ins, 0x00, 0x00, 0x00}
}

// reader walks a device response without panicking on truncated input.
type reader struct {
	buf []byte
	off int
	err error
}

func (r *reader) remaining() int {
	return len(r.buf) - r.off
}

func (r *reader) bytes(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || r.remaining() < n {
		r.err = errShortResponse
		return nil
	}
	out := r.buf[r.off : r.off+n]
	r.off += n
	return out
}

func (r *reader) u8() byte {
	b := r.bytes(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *reader) u16() uint16 {
	b := r.bytes(2)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint16(b)
}

func (r *reader) u32() uint32 {
	b := r.bytes(4)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint32(b)
}

// lv reads a length-prefixed field.
func (r *reader) lv() []byte {
	return r.bytes(int(r.u8()))
}

// ParseVersion decodes the dashboard GET_VERSION response:
// target_id(4) | len | se_version | len | flags | len | mcu_version.
// Older firmware stops after se_version.
func ParseVersion(resp []byte) (ledger.DeviceInfo, error) {
	r := &reader{buf: resp}
	info := ledger.DeviceInfo{
		TargetID: r.u32(),
		Version:  string(r.lv()),
	}
	if r.err != nil {
		return ledger.DeviceInfo{}, fmt.Errorf("invalid version response: %w", r.err)
	}
	if r.remaining() > 0 {
		info.Flags = append([]byte(nil), r.lv()...)
	}
	if r.remaining() > 0 {
		info.MCUVersion = strings.TrimRight(string(r.lv()), "\x00")
	}
	if r.err != nil {
		return ledger.DeviceInfo{}, fmt.Errorf("invalid version response: %w", r.err)
	}
	return info, nil
}

// AppEntry is one installed application as listed by the dashboard.
type AppEntry struct {
	Name     string
	Flags    uint16
	Blocks   uint16
	Hash     []byte
	CodeHash []byte
}

// ParseAppList decodes one LIST_APPS page. An empty page ends the listing.
func ParseAppList(page []byte) ([]AppEntry, error) {
	if len(page) == 0 {
		return nil, nil
	}
	if page[0] != listAppsFormatV1 {
		return nil, fmt.Errorf("unknown app list format %#02x", page[0])
	}

	r := &reader{buf: page, off: 1}
	var apps []AppEntry
	for r.remaining() > 0 {
		entry := &reader{buf: r.lv()}
		if r.err != nil {
			return nil, fmt.Errorf("invalid app list: %w", r.err)
		}
		app := AppEntry{
			Blocks:   entry.u16(),
			Flags:    entry.u16(),
			CodeHash: entry.bytes(appEntryHashBytes),
			Hash:     entry.bytes(appEntryHashBytes),
			Name:     string(entry.lv()),
		}
		if entry.err != nil {
			return nil, fmt.Errorf("invalid app entry: %w", entry.err)
		}
		apps = append(apps, app)
	}
	return apps, nil
}
