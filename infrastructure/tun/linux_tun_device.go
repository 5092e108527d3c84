// Package tun provides the reference Linux application.TunDevice: a
// TUN character device opened via the TUNSETIFF ioctl plus a set of `ip`
// command wrapper functions for address/route management.
//
// Only cmd/ imports this package: the core only ever sees the
// application.TunDevice interface.
package tun

import (
	"fmt"
	"os"
	"strings"
	"unsafe"

	"golang.org/x/sys/unix"

	"meshcore/application"
	"meshcore/domain/netsettings"
)

const (
	ifNameSize = 16
	tunSetIff  = 0x400454ca
	iffTun     = 0x0001
	iffNoPI    = 0x1000

	tunPath = "/dev/net/tun"
)

type ifReq struct {
	Name  [ifNameSize]byte
	Flags uint16
	_     [22]byte
}

// LinuxTunDevice owns one TUN character device plus the interface name it
// was bound to. ApplyNetworkSettings shells out to the `ip` binary; route
// management on a single tunnel interface does not need netlink.
type LinuxTunDevice struct {
	file    *os.File
	ifName  string
	applied netsettings.Settings
	logger  application.Logger
}

var _ application.TunDevice = (*LinuxTunDevice)(nil)

// NewLinuxTunDevice creates (or reuses) a TUN interface named ifName,
// opens its character device, and brings the link up. Address/route
// configuration happens later, via ApplyNetworkSettings, once the first
// HandshakeReply is known.
func NewLinuxTunDevice(ifName string, logger application.Logger) (*LinuxTunDevice, error) {
	if _, err := linkAdd(ifName); err != nil {
		return nil, fmt.Errorf("tun: create interface %s: %w", ifName, err)
	}

	file, err := openTunByName(ifName)
	if err != nil {
		_, _ = linkDelete(ifName)
		return nil, err
	}

	if _, err := linkSetUp(ifName); err != nil {
		_ = file.Close()
		_, _ = linkDelete(ifName)
		return nil, fmt.Errorf("tun: set %s up: %w", ifName, err)
	}

	return &LinuxTunDevice{file: file, ifName: ifName, logger: logger}, nil
}

func openTunByName(ifName string) (*os.File, error) {
	file, err := os.OpenFile(tunPath, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("tun: open %s: %w", tunPath, err)
	}

	var req ifReq
	copy(req.Name[:], ifName)
	req.Flags = iffTun | iffNoPI

	// The ioctl goes through SyscallConn rather than file.Fd(): Fd would put
	// the descriptor back into blocking mode, and Close could then no longer
	// interrupt a pending Read.
	rc, err := file.SyscallConn()
	if err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("tun: TUNSETIFF %s: %w", ifName, err)
	}
	var ioctlErr error
	if err := rc.Control(func(fd uintptr) {
		if _, _, errno := unix.Syscall(unix.SYS_IOCTL, fd, uintptr(tunSetIff), uintptr(unsafe.Pointer(&req))); errno != 0 {
			ioctlErr = errno
		}
	}); err != nil {
		ioctlErr = err
	}
	if ioctlErr != nil {
		_ = file.Close()
		return nil, fmt.Errorf("tun: TUNSETIFF %s: %w", ifName, ioctlErr)
	}
	return file, nil
}

func (d *LinuxTunDevice) ReadPacket(buf []byte) (int, error) {
	return d.file.Read(buf)
}

func (d *LinuxTunDevice) WritePacket(packet []byte) (int, error) {
	return d.file.Write(packet)
}

// ApplyNetworkSettings pushes local address/mask/gateway on first use and
// replaces the routed CIDR set by diffing against what was last applied,
// issuing only the add/del commands needed.
func (d *LinuxTunDevice) ApplyNetworkSettings(settings netsettings.Settings) error {
	if settings.LocalIP != "" && settings.LocalIP != d.applied.LocalIP {
		addr := settings.LocalIP
		if settings.Mask != "" {
			addr = settings.LocalIP + "/" + settings.Mask
		}
		if _, err := addrAdd(d.ifName, addr); err != nil {
			return fmt.Errorf("tun: assign address %s to %s: %w", addr, d.ifName, err)
		}
		if settings.Gateway != "" {
			if err := routeAddDev(settings.Gateway, d.ifName); err != nil && d.logger != nil {
				d.logger.Printf("tun: gateway route %s: %v", settings.Gateway, err)
			}
		}
	}

	added, removed := netsettings.Diff(d.applied.CIDRs, settings.CIDRs)
	for _, cidr := range removed {
		if err := routeDel(cidr); err != nil && d.logger != nil {
			d.logger.Printf("tun: route del %s: %v", cidr, err)
		}
	}
	for _, cidr := range added {
		if err := routeAddDev(cidr, d.ifName); err != nil {
			return fmt.Errorf("tun: route add %s dev %s: %w", cidr, d.ifName, err)
		}
	}

	d.applied = settings
	return nil
}

func (d *LinuxTunDevice) Close() error {
	err := d.file.Close()
	_, _ = linkDelete(d.ifName)
	return err
}

// GetIfName reads back the kernel-assigned interface name via TUNGETIFF,
// for the case where ifName was requested as a template (e.g. "tun%d").
func GetIfName(file *os.File) (string, error) {
	var req ifReq
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, file.Fd(), uintptr(unix.TUNGETIFF), uintptr(unsafe.Pointer(&req)))
	if errno != 0 {
		return "", errno
	}
	return strings.TrimRight(string(req.Name[:]), "\x00"), nil
}
