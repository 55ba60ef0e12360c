// ENC28J60 Ethernet host stack command-line tool
// https://github.com/usbarmory/enc28j60
//
// Copyright (c) WithSecure Corporation
// https://foundry.withsecure.com
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package main

import (
	"fmt"
	"os"
	"time"

	"github.com/eiannone/keyboard"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/usbarmory/enc28j60/stack"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Interactive dashboard of interface status and protocol counters",
	RunE:  runWatch,
}

// runWatch renders a single-screen dashboard in a raw terminal: the
// terminal is put in raw mode so keypresses are delivered one at a time
// without waiting for Enter, and a background goroutine polls for them
// while the main loop redraws the dashboard on a ticker.
func runWatch(cmd *cobra.Command, args []string) error {
	fc, err := loadFileConfig(flagConfig)
	if err != nil {
		return err
	}
	hostCfg, err := fc.toHostConfig()
	if err != nil {
		return err
	}
	hostCfg.Logger = nil

	nic, err := newNIC()
	if err != nil {
		return errors.Wrap(err, "nic")
	}
	h, err := stack.NewHost(nic, hostCfg)
	if err != nil {
		return errors.Wrap(err, "host")
	}

	var dhcp *stack.DHCPClient
	if fc.DHCP {
		dhcp = stack.NewDHCPClient(h, fc.Hostname)
	}

	fd := int(os.Stdin.Fd())
	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return errors.Wrap(err, "raw terminal")
	}
	defer term.Restore(fd, oldState)

	keys := make(chan rune)
	go func() {
		for {
			ch, key, err := keyboard.GetSingleKey()
			if err != nil || key == keyboard.KeyCtrlC {
				close(keys)
				return
			}
			keys <- ch
		}
	}()

	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case now := <-ticker.C:
			var components []stack.Tickable
			if dhcp != nil {
				components = append(components, dhcp)
			}
			h.Poll(now, components...)
			renderDashboard(h, dhcp)

		case ch, ok := <-keys:
			if !ok {
				return nil
			}
			switch ch {
			case 'q':
				return nil
			}
		}
	}
}

func renderDashboard(h *stack.Host, dhcp *stack.DHCPClient) {
	s := h.Stats()
	fmt.Print("\x1b[H\x1b[2J")
	fmt.Printf("enc28j60ctl — %s\r\n", h.MAC())
	fmt.Printf("ipv4: %s (configured=%v)\r\n", h.IPv4(), h.IsIPv4Configured())
	if dhcp != nil {
		fmt.Printf("dhcp: %s\r\n", dhcp.State())
	}
	fmt.Printf("arp   rx=%d tx=%d\r\n", s.ARPRx, s.ARPTx)
	fmt.Printf("ipv4  rx=%d tx=%d\r\n", s.IPv4Rx, s.IPv4Tx)
	fmt.Printf("icmp  rx=%d tx=%d\r\n", s.ICMPv4Rx, s.ICMPv4Tx)
	fmt.Printf("udp   rx=%d tx=%d\r\n", s.UDPv4Rx, s.UDPv4Tx)
	fmt.Print("\r\nq: quit\r\n")
}
