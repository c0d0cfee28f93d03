// Package jdwp implements the Java Debug Wire Protocol client backing the
// typed API in internal/jdi.
//
// The package provides:
//   - Connection: packet framing, the handshake, request/reply correlation
//     and the composite-event stream
//   - typed wrappers for the command sets the controller needs
//   - LaunchingConnector / AttachingConnector: session establishment with a
//     spawned or running target VM
//
// The protocol is described at:
// https://docs.oracle.com/javase/8/docs/platform/jpda/jdwp/jdwp-protocol.html
package jdwp

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"log"
	"net"
	"sync"
	"time"

	"github.com/ctagard/jdb-mcp/internal/jdi"
)

var handshake = []byte("JDWP-Handshake")

// replyTimeout bounds how long a command waits for its reply.
const replyTimeout = 30 * time.Second

// IDSizes describes the sizes of the variably sized identifier types,
// negotiated right after the handshake.
type IDSizes struct {
	FieldID         int32
	MethodID        int32
	ObjectID        int32
	ReferenceTypeID int32
	FrameID         int32
}

var defaultIDSizes = IDSizes{
	FieldID:         8,
	MethodID:        8,
	ObjectID:        8,
	ReferenceTypeID: 8,
	FrameID:         8,
}

const flagReply = 0x80

// Wire error codes surfaced by reply packets.
const (
	errNone              = 0
	errInvalidThread     = 10
	errInvalidObject     = 20
	errInvalidSlot       = 35
	errAbsentInformation = 101
	errInvalidEventType  = 102
	errVMDead            = 112
)

// wireError is a non-fatal JDWP error reply.
type wireError uint16

func (e wireError) Error() string {
	return fmt.Sprintf("jdwp error %d", uint16(e))
}

// replyError converts a reply error code into a Go error.
func replyError(code uint16) error {
	switch code {
	case errNone:
		return nil
	case errVMDead:
		return fmt.Errorf("vm dead: %w", jdi.ErrDisconnected)
	case errAbsentInformation:
		return jdi.ErrAbsentInformation
	default:
		return wireError(code)
	}
}

type reply struct {
	err  uint16
	data []byte
}

// eventSetMsg is one decoded composite event.
type eventSetMsg struct {
	policy jdi.SuspendPolicy
	events []wireEvent
}

// Connection is a live JDWP connection. All exported command methods are
// safe for concurrent use; replies are correlated by packet ID.
type Connection struct {
	conn  net.Conn
	w     *bufio.Writer
	wmu   sync.Mutex
	sizes IDSizes

	mu      sync.Mutex
	nextID  uint32
	replies map[uint32]chan reply

	events    chan eventSetMsg
	closed    chan struct{}
	closeOnce sync.Once
}

// Open performs the JDWP handshake over conn, negotiates ID sizes, and
// starts the receive loop.
func Open(conn net.Conn) (*Connection, error) {
	if err := exchangeHandshakes(conn); err != nil {
		conn.Close()
		return nil, err
	}
	c := &Connection{
		conn:    conn,
		w:       bufio.NewWriter(conn),
		sizes:   defaultIDSizes,
		replies: make(map[uint32]chan reply),
		events:  make(chan eventSetMsg, 16),
		closed:  make(chan struct{}),
	}
	go c.recv()
	sizes, err := c.idSizes()
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("negotiating ID sizes: %w", err)
	}
	c.sizes = sizes
	return c, nil
}

func exchangeHandshakes(conn net.Conn) error {
	if _, err := conn.Write(handshake); err != nil {
		return err
	}
	got := make([]byte, len(handshake))
	if _, err := io.ReadFull(conn, got); err != nil {
		return err
	}
	if string(got) != string(handshake) {
		return fmt.Errorf("bad JDWP handshake %q", got)
	}
	return nil
}

// Close tears down the connection. Pending and future commands fail with a
// disconnect error.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		err = c.conn.Close()
		c.mu.Lock()
		for id, ch := range c.replies {
			close(ch)
			delete(c.replies, id)
		}
		c.mu.Unlock()
	})
	return err
}

// Events returns the composite-event stream. The channel is closed when the
// connection dies.
func (c *Connection) Events() <-chan eventSetMsg { return c.events }

// send writes one command packet and registers a reply channel for it.
func (c *Connection) send(set, cmd uint8, data []byte) (chan reply, uint32, error) {
	c.mu.Lock()
	c.nextID++
	id := c.nextID
	ch := make(chan reply, 1)
	c.replies[id] = ch
	c.mu.Unlock()

	header := make([]byte, 11)
	binary.BigEndian.PutUint32(header[0:], uint32(11+len(data)))
	binary.BigEndian.PutUint32(header[4:], id)
	header[8] = 0
	header[9] = set
	header[10] = cmd

	c.wmu.Lock()
	defer c.wmu.Unlock()
	if _, err := c.w.Write(header); err != nil {
		c.drop(id)
		return nil, 0, fmt.Errorf("write: %w", jdi.ErrDisconnected)
	}
	if _, err := c.w.Write(data); err != nil {
		c.drop(id)
		return nil, 0, fmt.Errorf("write: %w", jdi.ErrDisconnected)
	}
	if err := c.w.Flush(); err != nil {
		c.drop(id)
		return nil, 0, fmt.Errorf("flush: %w", jdi.ErrDisconnected)
	}
	return ch, id, nil
}

func (c *Connection) drop(id uint32) {
	c.mu.Lock()
	delete(c.replies, id)
	c.mu.Unlock()
}

// call sends a command and waits for its reply payload.
func (c *Connection) call(set, cmd uint8, data []byte) ([]byte, error) {
	ch, id, err := c.send(set, cmd, data)
	if err != nil {
		return nil, err
	}
	select {
	case r, ok := <-ch:
		if !ok {
			return nil, fmt.Errorf("connection closed: %w", jdi.ErrDisconnected)
		}
		if err := replyError(r.err); err != nil {
			return nil, err
		}
		return r.data, nil
	case <-time.After(replyTimeout):
		c.drop(id)
		return nil, fmt.Errorf("command %d/%d timed out", set, cmd)
	case <-c.closed:
		c.drop(id)
		return nil, fmt.Errorf("connection closed: %w", jdi.ErrDisconnected)
	}
}

// recv decodes incoming packets, routing replies to their waiters and
// composite events to the event stream. It runs until the connection dies,
// then closes the event channel so the event pump observes the disconnect.
func (c *Connection) recv() {
	r := bufio.NewReader(c.conn)
	defer func() {
		c.Close()
		close(c.events)
	}()
	header := make([]byte, 11)
	for {
		if _, err := io.ReadFull(r, header); err != nil {
			return
		}
		length := binary.BigEndian.Uint32(header[0:])
		if length < 11 {
			log.Printf("jdwp: packet length too short (%d)", length)
			return
		}
		id := binary.BigEndian.Uint32(header[4:])
		flags := header[8]
		data := make([]byte, length-11)
		if _, err := io.ReadFull(r, data); err != nil {
			return
		}

		if flags&flagReply != 0 {
			errCode := uint16(header[9])<<8 | uint16(header[10])
			c.mu.Lock()
			ch, ok := c.replies[id]
			delete(c.replies, id)
			c.mu.Unlock()
			if !ok {
				log.Printf("jdwp: unexpected reply for packet %d", id)
				continue
			}
			ch <- reply{err: errCode, data: data}
			continue
		}

		set, cmd := header[9], header[10]
		if set == cmdSetEvent && cmd == cmdCompositeEvent {
			msg, err := decodeComposite(data, c.sizes)
			if err != nil {
				log.Printf("jdwp: decoding composite event: %v", err)
				continue
			}
			select {
			case c.events <- msg:
			case <-c.closed:
				return
			}
			continue
		}
		log.Printf("jdwp: ignoring unknown command packet %d/%d", set, cmd)
	}
}
