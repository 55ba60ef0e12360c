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

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"

	"github.com/usbarmory/enc28j60/stack"
)

// fileConfig is the on-disk shape of the configuration file, decoded with
// gopkg.in/yaml.v2.
type fileConfig struct {
	Hostname      string `yaml:"hostname"`
	DeviceID      string `yaml:"device_id"`
	MAC           string `yaml:"mac"`
	IP            string `yaml:"ip"`
	Mask          string `yaml:"mask"`
	Gateway       string `yaml:"gateway"`
	DNS           string `yaml:"dns"`
	DHCP          bool   `yaml:"dhcp"`
	PollPeriod    string `yaml:"poll_period"`
	MetricsListen string `yaml:"metrics_listen"`
}

func loadFileConfig(path string) (fileConfig, error) {
	var fc fileConfig
	data, err := os.ReadFile(path)
	if err != nil {
		return fc, errors.Wrap(err, "read config")
	}
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fc, errors.Wrap(err, "parse config")
	}
	return fc, nil
}

// parseIPv4 parses a dotted-quad address. An empty string parses to the
// zero address, used throughout stack.Config to mean "unset".
func parseIPv4(s string) (stack.IPv4, error) {
	var a stack.IPv4
	if s == "" {
		return a, nil
	}
	var b [4]int
	n, err := fmt.Sscanf(s, "%d.%d.%d.%d", &b[0], &b[1], &b[2], &b[3])
	if err != nil || n != 4 {
		return a, errors.Errorf("invalid IPv4 address %q", s)
	}
	for i, v := range b {
		if v < 0 || v > 255 {
			return a, errors.Errorf("invalid IPv4 address %q", s)
		}
		a[i] = byte(v)
	}
	return a, nil
}

func parseMAC(s string) (stack.MAC, error) {
	var m stack.MAC
	if s == "" {
		return m, nil
	}
	var b [6]int
	n, err := fmt.Sscanf(s, "%x:%x:%x:%x:%x:%x", &b[0], &b[1], &b[2], &b[3], &b[4], &b[5])
	if err != nil || n != 6 {
		return m, errors.Errorf("invalid MAC address %q", s)
	}
	for i, v := range b {
		m[i] = byte(v)
	}
	return m, nil
}

// toHostConfig translates the decoded YAML document into stack.Config.
func (fc fileConfig) toHostConfig() (stack.Config, error) {
	var cfg stack.Config

	mac, err := parseMAC(fc.MAC)
	if err != nil {
		return cfg, err
	}
	cfg.MAC = mac
	cfg.DeviceID = []byte(fc.DeviceID)

	if cfg.IP, err = parseIPv4(fc.IP); err != nil {
		return cfg, err
	}
	if cfg.Mask, err = parseIPv4(fc.Mask); err != nil {
		return cfg, err
	}
	if cfg.Gateway, err = parseIPv4(fc.Gateway); err != nil {
		return cfg, err
	}
	if cfg.DNS, err = parseIPv4(fc.DNS); err != nil {
		return cfg, err
	}
	return cfg, nil
}
