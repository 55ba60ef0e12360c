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
	"github.com/prometheus/client_golang/prometheus"

	"github.com/usbarmory/enc28j60/stack"
)

// statsCollector exports stack.Host's protocol counters as Prometheus
// counters, reading a fresh Stats() snapshot on every Collect.
type statsCollector struct {
	host *stack.Host

	arpRx, arpTx       *prometheus.Desc
	ipv4Rx, ipv4Tx     *prometheus.Desc
	icmpv4Rx, icmpv4Tx *prometheus.Desc
	udpv4Rx, udpv4Tx   *prometheus.Desc
}

func newStatsCollector(h *stack.Host) *statsCollector {
	ns := "enc28j60"
	return &statsCollector{
		host:     h,
		arpRx:    prometheus.NewDesc(ns+"_arp_rx_total", "ARP packets received", nil, nil),
		arpTx:    prometheus.NewDesc(ns+"_arp_tx_total", "ARP packets sent", nil, nil),
		ipv4Rx:   prometheus.NewDesc(ns+"_ipv4_rx_total", "IPv4 datagrams received", nil, nil),
		ipv4Tx:   prometheus.NewDesc(ns+"_ipv4_tx_total", "IPv4 datagrams sent", nil, nil),
		icmpv4Rx: prometheus.NewDesc(ns+"_icmpv4_rx_total", "ICMPv4 messages received", nil, nil),
		icmpv4Tx: prometheus.NewDesc(ns+"_icmpv4_tx_total", "ICMPv4 messages sent", nil, nil),
		udpv4Rx:  prometheus.NewDesc(ns+"_udpv4_rx_total", "UDPv4 datagrams received", nil, nil),
		udpv4Tx:  prometheus.NewDesc(ns+"_udpv4_tx_total", "UDPv4 datagrams sent", nil, nil),
	}
}

func (c *statsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.arpRx
	ch <- c.arpTx
	ch <- c.ipv4Rx
	ch <- c.ipv4Tx
	ch <- c.icmpv4Rx
	ch <- c.icmpv4Tx
	ch <- c.udpv4Rx
	ch <- c.udpv4Tx
}

func (c *statsCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.host.Stats()
	ch <- prometheus.MustNewConstMetric(c.arpRx, prometheus.CounterValue, float64(s.ARPRx))
	ch <- prometheus.MustNewConstMetric(c.arpTx, prometheus.CounterValue, float64(s.ARPTx))
	ch <- prometheus.MustNewConstMetric(c.ipv4Rx, prometheus.CounterValue, float64(s.IPv4Rx))
	ch <- prometheus.MustNewConstMetric(c.ipv4Tx, prometheus.CounterValue, float64(s.IPv4Tx))
	ch <- prometheus.MustNewConstMetric(c.icmpv4Rx, prometheus.CounterValue, float64(s.ICMPv4Rx))
	ch <- prometheus.MustNewConstMetric(c.icmpv4Tx, prometheus.CounterValue, float64(s.ICMPv4Tx))
	ch <- prometheus.MustNewConstMetric(c.udpv4Rx, prometheus.CounterValue, float64(s.UDPv4Rx))
	ch <- prometheus.MustNewConstMetric(c.udpv4Tx, prometheus.CounterValue, float64(s.UDPv4Tx))
}
