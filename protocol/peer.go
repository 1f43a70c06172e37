package protocol

import "github.com/rs/zerolog/log"

// PeerHandler answers one request received by a Peer. It returns the reply
// payload, or ok=false to stay silent.
type PeerHandler func(cmd Command, payload []byte) (reply []byte, ok bool)

// Peer is the device side of the protocol: it parses request frames from the
// host and encodes replies echoing the request's sequence and command.
// It backs device simulators and tests.
type Peer struct {
	parser  *Parser
	handler PeerHandler

	// Frames that failed to parse, by cause
	FramingErrors  int
	ChecksumErrors int
}

// NewPeer creates a new Peer
func NewPeer(handler PeerHandler) *Peer {
	return &Peer{
		parser:  NewParser(),
		handler: handler,
	}
}

// Receive consumes bytes sent by the host and returns the encoded replies
func (p *Peer) Receive(data []byte) []byte {
	var out []byte

	for _, b := range data {
		status, err := p.parser.Feed(b)
		switch status {
		case ParseError:
			if _, ok := err.(*ChecksumError); ok {
				p.ChecksumErrors++
			} else {
				p.FramingErrors++
			}
		case ParseComplete:
			req := p.parser.Frame()
			if p.handler == nil {
				continue
			}
			reply, ok := p.handler(req.Command, req.Payload)
			if !ok {
				continue
			}
			frame, err := Encode(req.Sequence, req.Command, reply)
			if err != nil {
				log.Error().Err(err).Stringer("cmd", req.Command).Msg("peer reply dropped")
				continue
			}
			out = append(out, frame...)
		}
	}

	return out
}
