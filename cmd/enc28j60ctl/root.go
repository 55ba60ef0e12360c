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
	"github.com/spf13/cobra"
)

const appName = "enc28j60ctl"

var flagConfig string

var rootCmd = &cobra.Command{
	Use:           appName,
	Short:         "Configure and monitor an ENC28J60 network interface",
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&flagConfig, "config", "c", "/etc/enc28j60ctl.yaml", "path to the interface configuration file")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(watchCmd)
}
