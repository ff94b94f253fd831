package camilladsp

import (
	"sync/atomic"
	"time"
)

// ClientStats contains statistics about client operations.
// All fields are safe for concurrent access.
//
// For Prometheus integration, expose these as:
//   - Counters: Exchanges, CamillaErrors, ProtocolErrors, IOErrors, NotConnected
//   - Counters: Connects, ConnectFailures, Disconnects
//   - Histogram: exchange latency (use Exchanges and ExchangeTimeNs to calculate)
type ClientStats struct {
	Exchanges       uint64 // Commands sent to the engine
	ExchangeTimeNs  uint64 // Total nanoseconds spent in send+receive
	CamillaErrors   uint64 // Commands the engine rejected
	ProtocolErrors  uint64 // Unparseable or uncorrelated replies
	IOErrors        uint64 // Exchanges that lost the stream
	NotConnected    uint64 // Calls made without a live stream
	Connects        uint64 // Successful connects
	ConnectFailures uint64 // Refused connects
	Disconnects     uint64 // Explicit disconnects of a live stream
}

// clientStatsCollector provides internal methods for updating client stats.
// Not exported - client updates its own stats.
type clientStatsCollector struct {
	stats *ClientStats
}

func newClientStatsCollector() *clientStatsCollector {
	return &clientStatsCollector{
		stats: &ClientStats{},
	}
}

func (c *clientStatsCollector) recordExchange(duration time.Duration) {
	atomic.AddUint64(&c.stats.Exchanges, 1)
	atomic.AddUint64(&c.stats.ExchangeTimeNs, uint64(duration.Nanoseconds()))
}

// recordError counts err under its kind. Nil and foreign errors are ignored.
func (c *clientStatsCollector) recordError(err error) {
	switch KindOf(err) {
	case KindCamilla:
		atomic.AddUint64(&c.stats.CamillaErrors, 1)
	case KindProtocol:
		atomic.AddUint64(&c.stats.ProtocolErrors, 1)
	case KindIO:
		atomic.AddUint64(&c.stats.IOErrors, 1)
	case KindNotConnected:
		atomic.AddUint64(&c.stats.NotConnected, 1)
	case KindConnectionRefused:
		atomic.AddUint64(&c.stats.ConnectFailures, 1)
	}
}

func (c *clientStatsCollector) recordConnect() {
	atomic.AddUint64(&c.stats.Connects, 1)
}

func (c *clientStatsCollector) recordDisconnect() {
	atomic.AddUint64(&c.stats.Disconnects, 1)
}

func (c *clientStatsCollector) snapshot() ClientStats {
	return ClientStats{
		Exchanges:       atomic.LoadUint64(&c.stats.Exchanges),
		ExchangeTimeNs:  atomic.LoadUint64(&c.stats.ExchangeTimeNs),
		CamillaErrors:   atomic.LoadUint64(&c.stats.CamillaErrors),
		ProtocolErrors:  atomic.LoadUint64(&c.stats.ProtocolErrors),
		IOErrors:        atomic.LoadUint64(&c.stats.IOErrors),
		NotConnected:    atomic.LoadUint64(&c.stats.NotConnected),
		Connects:        atomic.LoadUint64(&c.stats.Connects),
		ConnectFailures: atomic.LoadUint64(&c.stats.ConnectFailures),
		Disconnects:     atomic.LoadUint64(&c.stats.Disconnects),
	}
}
