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
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/usbarmory/enc28j60/stack"
)

var flagPollPeriod time.Duration
var flagIPOverride ipv4Value

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the interface poll loop",
	RunE:  runRun,
}

func init() {
	runCmd.Flags().DurationVar(&flagPollPeriod, "poll-period", 10*time.Millisecond, "interval between NIC poll ticks")
	runCmd.Flags().Var(&flagIPOverride, "ip", "override the configured static IPv4 address")
}

// ipv4Value adapts stack.IPv4 to pflag.Value so it can be bound directly to
// a flag without an intermediate string.
type ipv4Value stack.IPv4

func (v *ipv4Value) String() string {
	return stack.IPv4(*v).String()
}

func (v *ipv4Value) Set(s string) error {
	ip, err := parseIPv4(s)
	if err != nil {
		return err
	}
	*v = ipv4Value(ip)
	return nil
}

func (v *ipv4Value) Type() string { return "ipv4" }

var _ pflag.Value = (*ipv4Value)(nil)

// newNIC constructs the board's enc28j60.Driver. A concrete SPI bus
// implementation is board-specific, so a real deployment registers its own
// driver here via a board-specific build (mirroring the convention of a
// generic core package plus per-board wiring under soc/<family>).
var newNIC = func() (stack.NIC, error) {
	return nil, errors.New("enc28j60ctl: no NIC backend registered for this build")
}

func runRun(cmd *cobra.Command, args []string) error {
	fc, err := loadFileConfig(flagConfig)
	if err != nil {
		return err
	}
	hostCfg, err := fc.toHostConfig()
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("ip") {
		hostCfg.IP = stack.IPv4(flagIPOverride)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	hostCfg.Logger = slogLogger{logger}

	nic, err := newNIC()
	if err != nil {
		return errors.Wrap(err, "nic")
	}

	h, err := stack.NewHost(nic, hostCfg)
	if err != nil {
		return errors.Wrap(err, "host")
	}

	var components []stack.Tickable
	if fc.DHCP {
		dhcp := stack.NewDHCPClient(h, fc.Hostname)
		components = append(components, dhcp)
	}

	if fc.MetricsListen != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(newStatsCollector(h))
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
			logger.Error("metrics server exited", "err", http.ListenAndServe(fc.MetricsListen, mux))
		}()
	}

	stop := make(chan struct{})
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		close(stop)
	}()

	logger.Info("enc28j60ctl: starting poll loop", "period", flagPollPeriod)
	h.Run(stop, flagPollPeriod, components...)
	return nil
}

// slogLogger adapts log/slog to stack.Logger.
type slogLogger struct{ l *slog.Logger }

func (s slogLogger) Debugf(format string, args ...any) { s.l.Debug(fmt.Sprintf(format, args...)) }
func (s slogLogger) Infof(format string, args ...any)  { s.l.Info(fmt.Sprintf(format, args...)) }
func (s slogLogger) Errorf(format string, args ...any) { s.l.Error(fmt.Sprintf(format, args...)) }
