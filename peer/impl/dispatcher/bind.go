package dispatcher

import (
	"errors"
	"time"

	"go.dedis.ch/kdht/transport"
)

// listenPoll bounds how long the listen loop blocks in Recv, and thus how
// long Unbind waits for it.
const listenPoll = time.Millisecond * 200

// listen receives packets until stop is closed. Each packet is processed in
// its own goroutine.
func (d *Dispatcher) listen(sock transport.Socket, stop chan struct{}) {
	defer d.listenWG.Done()

	for {
		select {
		case <-stop:
			return
		default:
		}

		pkt, err := sock.Recv(listenPoll)
		if errors.Is(err, transport.TimeoutError(0)) {
			continue
		}
		if err != nil {
			select {
			case <-stop:
				// the socket was closed by Close
				return
			default:
			}

			d.logger.Warn().Err(err).Msg("failed to receive")

			// avoid spinning on a broken socket
			select {
			case <-stop:
				return
			case <-time.After(listenPoll):
			}
			continue
		}

		go d.HandlePacket(pkt)
	}
}
