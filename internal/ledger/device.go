package ledger

import (
	"context"
	"io"
)

// Handle is an open channel to the device. Every handle returned by a
// Transport must be closed by the caller.
type Handle interface {
	io.Closer
	Exchange(apdu []byte) ([]byte, error)
}

// Transport opens the attached device. A missing device, or a platform HID
// layer that cannot be initialised, is reported as ok == false.
type Transport interface {
	Open() (h Handle, ok bool)
}

// Manager is the device-side capability surface.
type Manager interface {
	DeviceInfo(h Handle) (DeviceInfo, error)
	InstalledApps(h Handle) ([]string, error)
	InstallApp(ctx context.Context, h Handle, app AppSelector) error
}

// Catalog looks up the installable firmware for an application. A nil
// descriptor with a nil error means the catalog has no entry for it.
type Catalog interface {
	AppDescriptor(info DeviceInfo, app AppSelector) (*AppDescriptor, error)
}
