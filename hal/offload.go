package hal

import (
	"sync"

	"github.com/bahlo/generic-list-go"
	"github.com/companyzero/audiohal/audiodef"
	"github.com/decred/slog"
)

// Event is reported to the callback of a non-blocking offload stream.
type Event int

const (
	// EventWriteReady is reported when buffer space became available
	// after a short write.
	EventWriteReady Event = iota + 1

	// EventDrainReady is reported when a requested drain completed.
	EventDrainReady

	// EventError is reported when a drain failed.
	EventError
)

func (e Event) String() string {
	switch e {
	case EventWriteReady:
		return "write-ready"
	case EventDrainReady:
		return "drain-ready"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// DrainType selects how much of the queued audio a drain waits for.
type DrainType int

const (
	// DrainAll waits until every queued frame was rendered.
	DrainAll DrainType = iota

	// DrainEarlyNotify returns at the end of the current track.
	DrainEarlyNotify
)

type offloadMsg int

const (
	msgWaitWrite offloadMsg = iota + 1
	msgDrain
	msgPartialDrain
	msgExit
)

func (m offloadMsg) String() string {
	switch m {
	case msgWaitWrite:
		return "wait-write"
	case msgDrain:
		return "drain"
	case msgPartialDrain:
		return "partial-drain"
	case msgExit:
		return "exit"
	default:
		return "unknown"
	}
}

// offloadWorker runs the blocking calls of a non-blocking compressed
// stream. The queue and the blocked flag are guarded by the stream lock.
type offloadWorker struct {
	out *OutStream
	log slog.Logger

	queue    *list.List[offloadMsg]
	msgCond  *sync.Cond
	syncCond *sync.Cond
	blocked  bool
	done     chan struct{}
}

func newOffloadWorker(out *OutStream, log slog.Logger) *offloadWorker {
	return &offloadWorker{
		out:      out,
		log:      log,
		queue:    list.New[offloadMsg](),
		msgCond:  sync.NewCond(&out.mtx),
		syncCond: sync.NewCond(&out.mtx),
		done:     make(chan struct{}),
	}
}

// send queues msg. Must be called with the stream lock held.
func (w *offloadWorker) send(msg offloadMsg) {
	w.queue.PushBack(msg)
	w.msgCond.Signal()
}

// waitIdle blocks until the worker is not inside a transport call. Must be
// called with the stream lock held.
func (w *offloadWorker) waitIdle() {
	for w.blocked {
		w.syncCond.Wait()
	}
}

// stop queues the exit message and waits for the worker to terminate.
// Messages queued before it are processed first.
func (w *offloadWorker) stop() {
	w.out.mtx.Lock()
	w.send(msgExit)
	w.out.mtx.Unlock()
	<-w.done
}

func (w *offloadWorker) run() {
	out := w.out
	defer close(w.done)

	out.mtx.Lock()
	defer out.mtx.Unlock()
	for {
		for w.queue.Len() == 0 {
			w.msgCond.Wait()
		}
		e := w.queue.Front()
		msg := e.Value
		w.queue.Remove(e)
		w.log.Tracef("Processing %s (%d queued)", msg, w.queue.Len())

		if msg == msgExit {
			for w.queue.Len() > 0 {
				w.log.Debugf("Discarding %s queued after exit", w.queue.Front().Value)
				w.queue.Remove(w.queue.Front())
			}
			w.log.Debugf("Offload worker done")
			return
		}

		ct := out.compress
		if out.State() < audiodef.StateIdle {
			w.log.Debugf("Ignoring %s with transport closed", msg)
			continue
		}

		w.blocked = true
		out.mtx.Unlock()

		var err error
		ev := EventDrainReady
		switch msg {
		case msgWaitWrite:
			// Waiting for buffer space never reports an error.
			if werr := ct.WaitForWrite(); werr != nil {
				w.log.Debugf("Wait for write: %v", werr)
			}
			ev = EventWriteReady
		case msgDrain:
			err = ct.Drain(false)
		case msgPartialDrain:
			// The data written so far ends the current track.
			if err = ct.NextTrack(); err == nil {
				err = ct.Drain(true)
			}
		}

		out.mtx.Lock()
		w.blocked = false
		w.syncCond.Broadcast()

		if msg == msgPartialDrain && out.State() > audiodef.StateIdle {
			// Gapless track change: the transport is halted keeping
			// the next track queued, and the next write starts it
			// again.
			if perr := ct.Pause(); perr != nil {
				w.log.Errorf("Unable to stop after %s: %v", msg, perr)
				out.dev.metrics.transportError()
			}
			out.setState(audiodef.StateIdle)
		}
		if err != nil {
			w.log.Errorf("Unable to %s: %v", msg, err)
			out.dev.metrics.transportError()
			ev = EventError
		}
		out.dev.metrics.offloadMsg(msg.String())
		if out.callback != nil {
			out.callback(ev)
		}
	}
}
