package stats

import (
	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusExporter registers gauges/counters that mirror a Collector's
// Snapshot on each Collect call. This is an additional, optional export
// surface for operators; the Snapshot struct remains the canonical
// read API.
type PrometheusExporter struct {
	collector *Collector

	rxBytes   *prometheus.Desc
	txBytes   *prometheus.Desc
	rxPackets *prometheus.Desc
	txPackets *prometheus.Desc
	p2pSent   *prometheus.Desc
	relaySent *prometheus.Desc
	dropped   *prometheus.Desc
	peerCount *prometheus.Desc
}

func NewPrometheusExporter(collector *Collector) *PrometheusExporter {
	return &PrometheusExporter{
		collector: collector,
		rxBytes:   prometheus.NewDesc("meshcore_rx_bytes_total", "Total bytes received.", nil, nil),
		txBytes:   prometheus.NewDesc("meshcore_tx_bytes_total", "Total bytes transmitted.", nil, nil),
		rxPackets: prometheus.NewDesc("meshcore_rx_packets_total", "Total packets received.", nil, nil),
		txPackets: prometheus.NewDesc("meshcore_tx_packets_total", "Total packets transmitted.", nil, nil),
		p2pSent:   prometheus.NewDesc("meshcore_p2p_sent_total", "Packets sent over the direct P2P path.", nil, nil),
		relaySent: prometheus.NewDesc("meshcore_relay_sent_total", "Packets sent over the relay path.", nil, nil),
		dropped:   prometheus.NewDesc("meshcore_dropped_total", "Outbound packets dropped (no relay session, no P2P route).", nil, nil),
		peerCount: prometheus.NewDesc("meshcore_peers_active", "Peers currently eligible for P2P delivery.", nil, nil),
	}
}

func (e *PrometheusExporter) Describe(ch chan<- *prometheus.Desc) {
	ch <- e.rxBytes
	ch <- e.txBytes
	ch <- e.rxPackets
	ch <- e.txPackets
	ch <- e.p2pSent
	ch <- e.relaySent
	ch <- e.dropped
	ch <- e.peerCount
}

func (e *PrometheusExporter) Collect(ch chan<- prometheus.Metric) {
	snap := e.collector.Snapshot()

	ch <- prometheus.MustNewConstMetric(e.rxBytes, prometheus.CounterValue, float64(snap.RXBytes))
	ch <- prometheus.MustNewConstMetric(e.txBytes, prometheus.CounterValue, float64(snap.TXBytes))
	ch <- prometheus.MustNewConstMetric(e.rxPackets, prometheus.CounterValue, float64(snap.RXPackets))
	ch <- prometheus.MustNewConstMetric(e.txPackets, prometheus.CounterValue, float64(snap.TXPackets))
	ch <- prometheus.MustNewConstMetric(e.p2pSent, prometheus.CounterValue, float64(snap.P2PSent))
	ch <- prometheus.MustNewConstMetric(e.relaySent, prometheus.CounterValue, float64(snap.RelaySent))
	ch <- prometheus.MustNewConstMetric(e.dropped, prometheus.CounterValue, float64(snap.Dropped))

	active := 0
	for _, p := range snap.Peers {
		if p.IsP2P {
			active++
		}
	}
	ch <- prometheus.MustNewConstMetric(e.peerCount, prometheus.GaugeValue, float64(active))
}
