// ENC28J60 Ethernet host stack
// https://github.com/usbarmory/enc28j60
//
// Copyright (c) WithSecure Corporation
// https://foundry.withsecure.com
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package stack

// Logger is the diagnostic hook consumed by the host stack: a small
// capability interface, an optional hook (like enet.RxHandler,
// enet.EnablePHY) rather than a hard dependency on a specific logging
// package, leaving the caller free to wire it to slog, zerolog, or nothing.
type Logger interface {
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Errorf(format string, args ...any)
}

// discardLogger drops everything. It is the default when Config.Logger is
// nil, so the stack stays silent until a caller opts in.
type discardLogger struct{}

func (discardLogger) Debugf(string, ...any) {}
func (discardLogger) Infof(string, ...any)  {}
func (discardLogger) Errorf(string, ...any) {}
