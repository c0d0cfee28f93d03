package debug

import (
	"log"

	"github.com/ctagard/jdb-mcp/internal/jdi"
)

// runEventPump blocks on the target's event queue and forwards each drained
// event set to the controller mailbox via post. It terminates once a
// VM-death or disconnect event has been forwarded, when the queue reports
// disconnection (a synthetic disconnect marker is forwarded), or on any
// other queue error (logged; the controller observes the disconnect on its
// next target operation).
//
// The pump never touches controller-owned state: class registration,
// pending-breakpoint retry and event-set resume all happen inside the
// controller actor.
func runEventPump(q jdi.EventQueue, post func(set jdi.EventSet, disconnected bool)) {
	for {
		set, err := q.Remove()
		if err != nil {
			if jdi.IsDisconnected(err) {
				post(nil, true)
			} else {
				log.Printf("event pump: %v", err)
			}
			return
		}
		post(set, false)
		for _, ev := range set.Events() {
			switch ev.Kind() {
			case jdi.KindVMDeath, jdi.KindVMDisconnect:
				return
			}
		}
	}
}
