// ENC28J60 Ethernet host stack command-line tool
// https://github.com/usbarmory/enc28j60
//
// Copyright (c) WithSecure Corporation
// https://foundry.withsecure.com
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Command enc28j60ctl drives a stack.Host against a board-supplied
// enc28j60.Driver: load a configuration, run the poll loop, and optionally
// watch a live status dashboard.
package main

import "os"

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
