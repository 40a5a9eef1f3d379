// Package discovery holds the read-only system probes the pipeline consults:
// interface existence/listing and DNS resolution. Nothing here mutates state.
package discovery

import (
	"net"

	"github.com/vishvananda/netlink"
)

// Prober answers interface-existence and listing queries. The validator holds
// one; tests substitute a fake.
type Prober interface {
	Exists(name string) (bool, error)
	List() ([]InterfaceInfo, error)
}

// InterfaceInfo is a read-only summary of one network interface.
type InterfaceInfo struct {
	Name     string   `json:"name"`
	Index    int      `json:"index"`
	MTU      int      `json:"mtu"`
	Up       bool     `json:"up"`
	Loopback bool     `json:"loopback"`
	Addrs    []string `json:"addrs,omitempty"`
}

// NetlinkProber implements Prober against the live kernel.
type NetlinkProber struct{}

func NewNetlinkProber() *NetlinkProber {
	return &NetlinkProber{}
}

func (p *NetlinkProber) Exists(name string) (bool, error) {
	if _, err := netlink.LinkByName(name); err != nil {
		if _, notFound := err.(netlink.LinkNotFoundError); notFound {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (p *NetlinkProber) List() ([]InterfaceInfo, error) {
	links, err := netlink.LinkList()
	if err != nil {
		return nil, err
	}

	var out []InterfaceInfo
	for _, link := range links {
		attrs := link.Attrs()
		info := InterfaceInfo{
			Name:     attrs.Name,
			Index:    attrs.Index,
			MTU:      attrs.MTU,
			Up:       attrs.Flags&net.FlagUp != 0,
			Loopback: attrs.Flags&net.FlagLoopback != 0,
		}
		if addrs, err := netlink.AddrList(link, netlink.FAMILY_ALL); err == nil {
			for _, addr := range addrs {
				info.Addrs = append(info.Addrs, addr.IPNet.String())
			}
		}
		out = append(out, info)
	}
	return out, nil
}

// MTU returns the current MTU of the named interface.
func (p *NetlinkProber) MTU(name string) (int, error) {
	link, err := netlink.LinkByName(name)
	if err != nil {
		return 0, err
	}
	return link.Attrs().MTU, nil
}
