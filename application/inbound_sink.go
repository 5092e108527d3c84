package application

// InboundSink receives decoded Data-frame payloads regardless of which
// transport they arrived on; both the control session and the P2P service
// deliver into the same sink, which writes to the virtual interface and
// advances the rx counters.
type InboundSink interface {
	DeliverInbound(packet []byte)
}
