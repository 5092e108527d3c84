package application

import "meshcore/domain/netsettings"

// TunDevice is the boundary to the platform virtual-interface driver: the
// packet-in/packet-out flow and the host-side route installer. The core
// never implements this itself; a platform package provides it (see
// infrastructure/tun for a Linux reference implementation).
type TunDevice interface {
	ReadPacket(buf []byte) (int, error)
	WritePacket(packet []byte) (int, error)
	ApplyNetworkSettings(settings netsettings.Settings) error
	Close() error
}
