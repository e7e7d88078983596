package rpc

// DefaultQueueSize is the default buffer of each channel direction.
const DefaultQueueSize = 16

// Channels is the transport between a Bridge and a Runner. The Bridge sends
// on Inbound and closes it; the Runner sends on Outbound and closes it.
type Channels struct {
	Inbound  chan Command
	Outbound chan Response
}

// NewChannels creates a channel pair with the given buffer per direction.
// A negative buffer is treated as zero.
func NewChannels(buffer int) *Channels {
	if buffer < 0 {
		buffer = 0
	}
	return &Channels{
		Inbound:  make(chan Command, buffer),
		Outbound: make(chan Response, buffer),
	}
}
