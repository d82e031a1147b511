// Package device collects the per-interface metadata recorded in a
// capture session's lead record: IPv4/IPv6 subnets, MAC address, link
// speed, and hardware description.
package device

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/mdlayher/ethtool"
	"github.com/siderolabs/go-pcidb/pkg/pcidb"

	"github.com/fastcap/fastcap/internal/capfile"
)

// Info is the interface metadata consumed when building a lead record.
type Info struct {
	Name     string
	IPv4     []capfile.IPv4Subnet
	IPv6     []capfile.IPv6Subnet
	MAC      [6]byte
	HasMAC   bool
	Hardware string
	SpeedBps uint64
}

// interfaceByName is a package-level variable so tests can substitute it
// without a real network interface.
var interfaceByName = net.InterfaceByName

// Collect gathers all known metadata for the named interface. Fields that
// cannot be determined are left at their zero value rather than failing
// the whole call, per the non-fatal policy for external metadata.
func Collect(name string) (*Info, error) {
	iface, err := interfaceByName(name)
	if err != nil {
		return nil, fmt.Errorf("device: %s: %w", name, err)
	}

	info := &Info{Name: name, Hardware: hardwareDescription(name), SpeedBps: linkSpeedBps(name)}

	if len(iface.HardwareAddr) == 6 {
		copy(info.MAC[:], iface.HardwareAddr)
		info.HasMAC = true
	}

	addrs, err := iface.Addrs()
	if err != nil {
		return info, nil
	}
	for _, a := range addrs {
		ipnet, ok := a.(*net.IPNet)
		if !ok {
			continue
		}
		if v4 := ipnet.IP.To4(); v4 != nil {
			var subnet capfile.IPv4Subnet
			copy(subnet.Addr[:], v4)
			mask := ipnet.Mask
			if len(mask) == 16 {
				mask = mask[12:]
			}
			copy(subnet.Mask[:], mask)
			info.IPv4 = append(info.IPv4, subnet)
			continue
		}
		if v6 := ipnet.IP.To16(); v6 != nil {
			ones, _ := ipnet.Mask.Size()
			var subnet capfile.IPv6Subnet
			copy(subnet.Addr[:], v6)
			subnet.PrefixLen = uint8(ones)
			info.IPv6 = append(info.IPv6, subnet)
		}
	}
	return info, nil
}

var newEthtoolClient = ethtool.New

func linkSpeedBps(name string) uint64 {
	client, err := newEthtoolClient()
	if err != nil {
		return 0
	}
	defer client.Close()

	mode, err := client.LinkMode(ethtool.Interface{Name: name})
	if err != nil || mode.SpeedMegabits <= 0 {
		return 0
	}
	return uint64(mode.SpeedMegabits) * 1_000_000
}

func readHexID(path string) (uint64, bool) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, false
	}
	s := strings.TrimSpace(string(raw))
	s = strings.TrimPrefix(s, "0x")
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return 0, false
	}
	return v, true
}

func hardwareDescription(name string) string {
	base := filepath.Join("/sys/class/net", name, "device")
	vendorID, ok := readHexID(filepath.Join(base, "vendor"))
	if !ok {
		return ""
	}
	deviceID, ok := readHexID(filepath.Join(base, "device"))
	if !ok {
		return ""
	}
	revision, _ := readHexID(filepath.Join(base, "revision"))

	vendorName, vendorOK := pcidb.LookupVendor(pcidb.Vendor(vendorID))
	productName, productOK := pcidb.LookupProduct(pcidb.Vendor(vendorID), pcidb.Product(deviceID))

	switch {
	case productOK:
		if revision != 0 {
			return fmt.Sprintf("%s %s (rev %02X)", vendorName, productName, revision)
		}
		return fmt.Sprintf("%s %s", vendorName, productName)
	case vendorOK:
		if revision != 0 {
			return fmt.Sprintf("%s Device %04X (rev %02X)", vendorName, deviceID, revision)
		}
		return fmt.Sprintf("%s Device %04X", vendorName, deviceID)
	default:
		return ""
	}
}
