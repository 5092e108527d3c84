package tun

// Wrapper functions on the `ip` command.

import (
	"fmt"
	"os/exec"
)

func linkAdd(ifName string) (string, error) {
	cmd := exec.Command("ip", "tuntap", "add", "dev", ifName, "mode", "tun")
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("ip tuntap add dev %s: %w, output: %s", ifName, err, out)
	}
	return ifName, nil
}

func linkDelete(ifName string) (string, error) {
	cmd := exec.Command("ip", "link", "delete", ifName)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("ip link delete %s: %w, output: %s", ifName, err, out)
	}
	return ifName, nil
}

func linkSetUp(ifName string) (string, error) {
	cmd := exec.Command("ip", "link", "set", "dev", ifName, "up")
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("ip link set dev %s up: %w, output: %s", ifName, err, out)
	}
	return ifName, nil
}

func addrAdd(ifName, addr string) (string, error) {
	cmd := exec.Command("ip", "addr", "add", addr, "dev", ifName)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("ip addr add %s dev %s: %w, output: %s", addr, ifName, err, out)
	}
	return ifName, nil
}

func routeAddDev(cidr, ifName string) error {
	cmd := exec.Command("ip", "route", "add", cidr, "dev", ifName)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("ip route add %s dev %s: %w, output: %s", cidr, ifName, err, out)
	}
	return nil
}

func routeDel(cidr string) error {
	cmd := exec.Command("ip", "route", "del", cidr)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("ip route del %s: %w, output: %s", cidr, err, out)
	}
	return nil
}
