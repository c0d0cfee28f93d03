package jdwp

import (
	"encoding/binary"
	"io"
	"net"
	"sync"
	"testing"

	"github.com/ctagard/jdb-mcp/internal/jdi"
)

// scriptedVM speaks just enough JDWP on the server side of a pipe to
// exercise the connection: the handshake, ID-size negotiation, and a
// handler per command.
type scriptedVM struct {
	conn     net.Conn
	t        *testing.T
	mu       sync.Mutex
	handlers map[[2]uint8]func(data []byte) (errCode uint16, reply []byte)
}

func (s *scriptedVM) handle(set, cmd uint8, h func([]byte) (uint16, []byte)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[[2]uint8{set, cmd}] = h
}

func newScriptedVM(t *testing.T, conn net.Conn) *scriptedVM {
	s := &scriptedVM{
		conn:     conn,
		t:        t,
		handlers: make(map[[2]uint8]func([]byte) (uint16, []byte)),
	}
	// IDSizes: everything 8 bytes.
	s.handle(cmdSetVirtualMachine, 7, func([]byte) (uint16, []byte) {
		w := newWbuf(defaultIDSizes)
		for i := 0; i < 5; i++ {
			w.u32(8)
		}
		return errNone, w.b
	})
	go s.serve()
	return s
}

func (s *scriptedVM) serve() {
	buf := make([]byte, len(handshake))
	if _, err := io.ReadFull(s.conn, buf); err != nil {
		return
	}
	if _, err := s.conn.Write(handshake); err != nil {
		return
	}
	header := make([]byte, 11)
	for {
		if _, err := io.ReadFull(s.conn, header); err != nil {
			return
		}
		length := binary.BigEndian.Uint32(header[0:])
		id := binary.BigEndian.Uint32(header[4:])
		set, cmd := header[9], header[10]
		data := make([]byte, length-11)
		if _, err := io.ReadFull(s.conn, data); err != nil {
			return
		}

		s.mu.Lock()
		h, ok := s.handlers[[2]uint8{set, cmd}]
		s.mu.Unlock()
		errCode, reply := uint16(errInvalidEventType), []byte(nil)
		if ok {
			errCode, reply = h(data)
		}
		out := make([]byte, 11+len(reply))
		binary.BigEndian.PutUint32(out[0:], uint32(11+len(reply)))
		binary.BigEndian.PutUint32(out[4:], id)
		out[8] = flagReply
		out[9] = byte(errCode >> 8)
		out[10] = byte(errCode)
		copy(out[11:], reply)
		if _, err := s.conn.Write(out); err != nil {
			return
		}
	}
}

// sendEvent pushes a composite event packet to the client.
func (s *scriptedVM) sendEvent(payload []byte) {
	out := make([]byte, 11+len(payload))
	binary.BigEndian.PutUint32(out[0:], uint32(11+len(payload)))
	binary.BigEndian.PutUint32(out[4:], 0xFFFF)
	out[8] = 0
	out[9] = cmdSetEvent
	out[10] = cmdCompositeEvent
	copy(out[11:], payload)
	if _, err := s.conn.Write(out); err != nil {
		s.t.Logf("sendEvent: %v", err)
	}
}

func pipeConnection(t *testing.T) (*Connection, *scriptedVM) {
	t.Helper()
	client, server := net.Pipe()
	vm := newScriptedVM(t, server)
	c, err := Open(client)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c, vm
}

func TestConnectionHandshakeAndIDSizes(t *testing.T) {
	c, _ := pipeConnection(t)
	if c.sizes.ObjectID != 8 || c.sizes.FieldID != 8 {
		t.Errorf("negotiated sizes = %+v", c.sizes)
	}
}

func TestConnectionAllThreads(t *testing.T) {
	c, vm := pipeConnection(t)
	vm.handle(cmdSetVirtualMachine, 4, func([]byte) (uint16, []byte) {
		w := newWbuf(defaultIDSizes)
		w.u32(2)
		w.objectID(11)
		w.objectID(22)
		return errNone, w.b
	})

	ids, err := c.allThreads()
	if err != nil {
		t.Fatalf("allThreads: %v", err)
	}
	if len(ids) != 2 || ids[0] != 11 || ids[1] != 22 {
		t.Errorf("allThreads = %v", ids)
	}
}

func TestConnectionErrorReply(t *testing.T) {
	c, vm := pipeConnection(t)
	vm.handle(cmdSetVirtualMachine, 9, func([]byte) (uint16, []byte) {
		return errVMDead, nil
	})
	if err := c.resumeAll(); !jdi.IsDisconnected(err) {
		t.Errorf("VM_DEAD reply mapped to %v", err)
	}
}

func TestConnectionEventDelivery(t *testing.T) {
	c, vm := pipeConnection(t)

	w := newWbuf(defaultIDSizes)
	w.u8(uint8(jdi.SuspendNone))
	w.u32(1)
	w.u8(uint8(jdi.KindThreadStart))
	w.u32(5)
	w.objectID(33)
	vm.sendEvent(w.b)

	msg, ok := <-c.Events()
	if !ok {
		t.Fatalf("event channel closed")
	}
	if msg.policy != jdi.SuspendNone || len(msg.events) != 1 || msg.events[0].Thread != 33 {
		t.Errorf("event = %+v", msg)
	}
}

func TestConnectionCallAfterCloseFails(t *testing.T) {
	c, _ := pipeConnection(t)
	c.Close()
	if err := c.resumeAll(); !jdi.IsDisconnected(err) {
		t.Errorf("call after close mapped to %v", err)
	}
}
