package dispatcher

import (
	"sync"

	"github.com/rs/zerolog"
	"go.dedis.ch/kdht/transport"
	"go.dedis.ch/kdht/types"
)

// DefaultListenerQueueSize is the number of events buffered by default.
const DefaultListenerQueueSize = 256

// MessageListener observes the messages going through the dispatcher. It is
// called from a dedicated goroutine, never from the dispatch path.
type MessageListener interface {
	MessageSent(dest types.Contact, msg types.RPCMessage)
	MessageReceived(msg types.RPCMessage, pkt transport.Packet)
}

type event struct {
	sent bool
	dest types.Contact
	msg  types.RPCMessage
	pkt  transport.Packet
}

// eventLoop fans message events out to listeners. Publishing never blocks: an
// event is dropped when the queue is full.
type eventLoop struct {
	sync.RWMutex
	listeners []MessageListener

	queue  chan event
	stop   chan struct{}
	once   sync.Once
	wg     sync.WaitGroup
	logger zerolog.Logger
}

func newEventLoop(size int, logger zerolog.Logger) *eventLoop {
	if size <= 0 {
		size = DefaultListenerQueueSize
	}

	l := &eventLoop{
		queue:  make(chan event, size),
		stop:   make(chan struct{}),
		logger: logger,
	}

	l.wg.Add(1)
	go l.run()

	return l
}

func (l *eventLoop) add(listener MessageListener) {
	l.Lock()
	defer l.Unlock()

	l.listeners = append(l.listeners, listener)
}

func (l *eventLoop) remove(listener MessageListener) bool {
	l.Lock()
	defer l.Unlock()

	for i, other := range l.listeners {
		if other == listener {
			l.listeners = append(l.listeners[:i], l.listeners[i+1:]...)
			return true
		}
	}
	return false
}

func (l *eventLoop) publish(ev event) {
	l.RLock()
	empty := len(l.listeners) == 0
	l.RUnlock()

	if empty {
		return
	}

	select {
	case <-l.stop:
	case l.queue <- ev:
	default:
		l.logger.Warn().Str("msg", ev.msg.Name()).Msg("listener queue full, event dropped")
	}
}

func (l *eventLoop) run() {
	defer l.wg.Done()

	for {
		select {
		case <-l.stop:
			return
		case ev := <-l.queue:
			l.RLock()
			listeners := make([]MessageListener, len(l.listeners))
			copy(listeners, l.listeners)
			l.RUnlock()

			for _, listener := range listeners {
				if ev.sent {
					listener.MessageSent(ev.dest, ev.msg)
				} else {
					listener.MessageReceived(ev.msg, ev.pkt)
				}
			}
		}
	}
}

func (l *eventLoop) close() {
	l.once.Do(func() {
		close(l.stop)
	})
	l.wg.Wait()
}
