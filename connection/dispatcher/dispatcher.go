/*
The dispatcher package delivers connection events to the handlers registered
for them. Dispatch is expected to be called from a single goroutine, the
connection's receive loop, and runs handlers synchronously on it in the order
they were registered. A handler that panics is logged and skipped.
*/
package dispatcher

import (
	"fmt"
	"sync"

	"bastionzero.com/wasync/connection/event"
	"bastionzero.com/wasync/logger"
)

type registration struct {
	seq     uint64
	handler event.Handler
}

type Dispatcher struct {
	logger *logger.Logger

	lock     sync.Mutex
	handlers map[event.Type][]registration
	next     uint64

	// once a Close has gone out nothing else does
	closed bool
}

func New(logger *logger.Logger) *Dispatcher {
	return &Dispatcher{
		logger:   logger,
		handlers: make(map[event.Type][]registration),
	}
}

// Register appends handler to the list for tag. Registering the same handler
// twice means it is called twice.
func (d *Dispatcher) Register(tag event.Type, handler event.Handler) {
	if handler == nil {
		return
	}

	d.lock.Lock()
	defer d.lock.Unlock()

	d.next++
	d.handlers[tag] = append(d.handlers[tag], registration{seq: d.next, handler: handler})
}

// Dispatch delivers evt and reports whether it was delivered at all. Events
// with no handlers are dropped silently.
func (d *Dispatcher) Dispatch(evt event.Event) bool {
	d.lock.Lock()
	if d.closed {
		d.lock.Unlock()
		d.logger.Debugf("Dropping %s event, a close has already been dispatched", evt)
		return false
	}
	if evt.Type == event.Close {
		d.closed = true
	}

	// copy so handlers can register more handlers without deadlocking
	var handlers []event.Handler
	if evt.Err != nil {
		handlers = merge(d.handlers[evt.Type], d.handlers[event.AnyError])
	} else {
		handlers = merge(d.handlers[evt.Type], nil)
	}
	d.lock.Unlock()

	d.logger.Tracef("Dispatching %s to %d handlers", evt, len(handlers))
	for i, handler := range handlers {
		if err := d.invoke(handler, evt); err != nil {
			d.logger.Errorf("handler %d for %s failed: %s", i, evt.Type, err)
		}
	}

	return true
}

// Closed reports whether a Close event has been dispatched
func (d *Dispatcher) Closed() bool {
	d.lock.Lock()
	defer d.lock.Unlock()

	return d.closed
}

// merge interleaves two registration lists back into the order the handlers
// were registered in
func merge(tagged, catchAll []registration) []event.Handler {
	handlers := make([]event.Handler, 0, len(tagged)+len(catchAll))
	for len(tagged) > 0 || len(catchAll) > 0 {
		if len(catchAll) == 0 || (len(tagged) > 0 && tagged[0].seq < catchAll[0].seq) {
			handlers = append(handlers, tagged[0].handler)
			tagged = tagged[1:]
		} else {
			handlers = append(handlers, catchAll[0].handler)
			catchAll = catchAll[1:]
		}
	}
	return handlers
}

func (d *Dispatcher) invoke(handler event.Handler, evt event.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	handler(evt)
	return nil
}
