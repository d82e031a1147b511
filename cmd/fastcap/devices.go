package main

import (
	"fmt"

	"github.com/google/gopacket/pcap"
	"github.com/spf13/cobra"

	"github.com/fastcap/fastcap/internal/device"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List network interfaces visible to libpcap, with capture metadata",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		devs, err := pcap.FindAllDevs()
		if err != nil {
			return fmt.Errorf("devices: %w", err)
		}
		if len(devs) == 0 {
			fmt.Println("no interfaces found (are you running with sufficient privileges?)")
			return nil
		}

		for _, d := range devs {
			fmt.Printf("%s", d.Name)
			if d.Description != "" {
				fmt.Printf(" - %s", d.Description)
			}
			fmt.Println()

			info, err := device.Collect(d.Name)
			if err != nil {
				continue
			}
			if info.HasMAC {
				fmt.Printf("  mac:      %x:%x:%x:%x:%x:%x\n", info.MAC[0], info.MAC[1], info.MAC[2], info.MAC[3], info.MAC[4], info.MAC[5])
			}
			if info.SpeedBps > 0 {
				fmt.Printf("  speed:    %d Mb/s\n", info.SpeedBps/1_000_000)
			}
			if info.Hardware != "" {
				fmt.Printf("  hardware: %s\n", info.Hardware)
			}
			for _, s := range info.IPv4 {
				fmt.Printf("  ipv4:     %d.%d.%d.%d\n", s.Addr[0], s.Addr[1], s.Addr[2], s.Addr[3])
			}
			for _, s := range info.IPv6 {
				fmt.Printf("  ipv6:     %x/%d\n", s.Addr, s.PrefixLen)
			}
		}
		return nil
	},
}
