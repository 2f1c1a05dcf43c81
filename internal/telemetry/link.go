package telemetry

import (
	"context"
	"fmt"
	"net"
)

// InterfaceLinkSampler: online, если хотя бы один не-loopback интерфейс поднят и имеет адрес
type InterfaceLinkSampler struct {
	interfaces func() ([]net.Interface, error)
	addrs      func(net.Interface) ([]net.Addr, error)
}

func NewInterfaceLinkSampler() *InterfaceLinkSampler {
	return &InterfaceLinkSampler{
		interfaces: net.Interfaces,
		addrs:      func(i net.Interface) ([]net.Addr, error) { return i.Addrs() },
	}
}

func (s *InterfaceLinkSampler) Online(_ context.Context) (bool, error) {
	ifaces, err := s.interfaces()
	if err != nil {
		return false, fmt.Errorf("list interfaces: %w", err)
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := s.addrs(iface)
		if err != nil {
			continue
		}
		if len(addrs) > 0 {
			return true, nil
		}
	}
	return false, nil
}
