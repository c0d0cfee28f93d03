// Package dapserver exposes the debug controller to editors over the Debug
// Adapter Protocol.
//
// The gateway is a convenience surface: it accepts one editor client at a
// time on a TCP listener and translates the DAP requests that map cleanly
// onto controller operations (breakpoints, stepping, threads, stack traces,
// scopes/variables). Requests outside that set get a failed response. The
// MCP surface remains the full-fidelity API.
package dapserver

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"path/filepath"
	"sync"

	"github.com/google/go-dap"

	"github.com/ctagard/jdb-mcp/internal/debug"
	"github.com/ctagard/jdb-mcp/internal/errors"
	"github.com/ctagard/jdb-mcp/pkg/types"
)

// Server is the DAP gateway.
type Server struct {
	ctrl   *debug.Controller
	events *debug.Broadcaster

	mu       sync.Mutex
	listener net.Listener
	closed   bool
}

// New builds a gateway over the controller and its event broadcaster.
func New(ctrl *debug.Controller, events *debug.Broadcaster) *Server {
	return &Server{ctrl: ctrl, events: events}
}

// ListenAndServe accepts editor connections on addr, one at a time, until
// Close is called.
func (s *Server) ListenAndServe(addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		listener.Close()
		return nil
	}
	s.listener = listener
	s.mu.Unlock()

	log.Printf("DAP gateway listening on %s", addr)
	for {
		conn, err := listener.Accept()
		if err != nil {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if closed {
				return nil
			}
			return err
		}
		newClient(s.ctrl, s.events, conn).serve()
	}
}

// Close stops the listener.
func (s *Server) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if s.listener != nil {
		s.listener.Close()
	}
}

// client is one editor connection.
type client struct {
	ctrl   *debug.Controller
	events *debug.Broadcaster
	conn   net.Conn

	writeMu sync.Mutex
	seq     int

	// scopeRefs maps a variablesReference to the frame it names.
	scopeMu   sync.Mutex
	scopeRefs map[int]frameKey
	nextRef   int
}

type frameKey struct {
	thread uint64
	frame  int
}

func newClient(ctrl *debug.Controller, events *debug.Broadcaster, conn net.Conn) *client {
	return &client{
		ctrl:      ctrl,
		events:    events,
		conn:      conn,
		scopeRefs: make(map[int]frameKey),
	}
}

func (c *client) serve() {
	defer c.conn.Close()

	eventCh, cancel := c.events.Subscribe(64)
	done := make(chan struct{})
	defer close(done)
	defer cancel()
	go c.forwardEvents(eventCh, done)

	reader := bufio.NewReader(c.conn)
	for {
		msg, err := dap.ReadProtocolMessage(reader)
		if err != nil {
			log.Printf("DAP gateway: client gone: %v", err)
			return
		}
		if stop := c.dispatch(msg); stop {
			return
		}
	}
}

// forwardEvents translates controller events into DAP events.
func (c *client) forwardEvents(events <-chan types.DebugEvent, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case ev := <-events:
			switch ev.Kind {
			case types.EventBreak:
				c.sendStopped("breakpoint", ev.ThreadID)
			case types.EventStep:
				c.sendStopped("step", ev.ThreadID)
			case types.EventException:
				c.sendStopped("exception", ev.ThreadID)
			case types.EventOutput:
				c.send(&dap.OutputEvent{
					Event: c.event("output"),
					Body:  dap.OutputEventBody{Category: "stdout", Output: ev.Text},
				})
			case types.EventBackground:
				c.send(&dap.OutputEvent{
					Event: c.event("output"),
					Body:  dap.OutputEventBody{Category: "console", Output: ev.Text + "\n"},
				})
			case types.EventThreadStart:
				c.send(&dap.ThreadEvent{
					Event: c.event("thread"),
					Body:  dap.ThreadEventBody{Reason: "started", ThreadId: int(ev.ThreadID)},
				})
			case types.EventThreadDeath:
				c.send(&dap.ThreadEvent{
					Event: c.event("thread"),
					Body:  dap.ThreadEventBody{Reason: "exited", ThreadId: int(ev.ThreadID)},
				})
			case types.EventDisconnect:
				c.send(&dap.TerminatedEvent{Event: c.event("terminated")})
			}
		}
	}
}

func (c *client) sendStopped(reason string, threadID uint64) {
	c.send(&dap.StoppedEvent{
		Event: c.event("stopped"),
		Body: dap.StoppedEventBody{
			Reason:            reason,
			ThreadId:          int(threadID),
			AllThreadsStopped: true,
		},
	})
}

// dispatch handles one request. Returns true when the connection should
// close.
func (c *client) dispatch(msg dap.Message) bool {
	switch req := msg.(type) {
	case *dap.InitializeRequest:
		c.send(&dap.InitializeResponse{
			Response: c.response(req.Seq, req.Command),
			Body: dap.Capabilities{
				SupportsConfigurationDoneRequest: true,
			},
		})
		c.send(&dap.InitializedEvent{Event: c.event("initialized")})

	case *dap.LaunchRequest:
		var args struct {
			MainClass string   `json:"mainClass"`
			Args      []string `json:"args"`
		}
		resp := &dap.LaunchResponse{Response: c.response(req.Seq, req.Command)}
		if err := json.Unmarshal(req.Arguments, &args); err != nil || args.MainClass == "" {
			c.fail(&resp.Response, "launch needs a mainClass argument")
			c.send(resp)
			break
		}
		command := append([]string{args.MainClass}, args.Args...)
		if _, err := c.ctrl.Start(context.Background(), command, nil, nil); err != nil {
			c.fail(&resp.Response, errors.FromError(err).Error())
		}
		c.send(resp)

	case *dap.AttachRequest:
		var args struct {
			Host string `json:"host"`
			Port int    `json:"port"`
		}
		resp := &dap.AttachResponse{Response: c.response(req.Seq, req.Command)}
		if err := json.Unmarshal(req.Arguments, &args); err != nil || args.Port == 0 {
			c.fail(&resp.Response, "attach needs a port argument")
			c.send(resp)
			break
		}
		if _, err := c.ctrl.Attach(context.Background(), args.Host, args.Port); err != nil {
			c.fail(&resp.Response, errors.FromError(err).Error())
		}
		c.send(resp)

	case *dap.SetBreakpointsRequest:
		c.send(c.setBreakpoints(req))

	case *dap.ConfigurationDoneRequest:
		c.send(&dap.ConfigurationDoneResponse{Response: c.response(req.Seq, req.Command)})

	case *dap.ContinueRequest:
		resp := &dap.ContinueResponse{Response: c.response(req.Seq, req.Command)}
		if !c.ctrl.Continue(uint64(req.Arguments.ThreadId)) {
			c.fail(&resp.Response, "no active session")
		}
		resp.Body.AllThreadsContinued = true
		c.send(resp)

	case *dap.NextRequest:
		resp := &dap.NextResponse{Response: c.response(req.Seq, req.Command)}
		if !c.ctrl.Next(uint64(req.Arguments.ThreadId)) {
			c.fail(&resp.Response, "step failed")
		}
		c.send(resp)

	case *dap.StepInRequest:
		resp := &dap.StepInResponse{Response: c.response(req.Seq, req.Command)}
		if !c.ctrl.Step(uint64(req.Arguments.ThreadId)) {
			c.fail(&resp.Response, "step failed")
		}
		c.send(resp)

	case *dap.StepOutRequest:
		resp := &dap.StepOutResponse{Response: c.response(req.Seq, req.Command)}
		if !c.ctrl.StepOut(uint64(req.Arguments.ThreadId)) {
			c.fail(&resp.Response, "step failed")
		}
		c.send(resp)

	case *dap.ThreadsRequest:
		resp := &dap.ThreadsResponse{Response: c.response(req.Seq, req.Command)}
		threads, ok := c.ctrl.Threads()
		if !ok {
			c.fail(&resp.Response, "no active session")
		}
		for _, t := range threads {
			resp.Body.Threads = append(resp.Body.Threads, dap.Thread{Id: int(t.ID), Name: t.Name})
		}
		c.send(resp)

	case *dap.StackTraceRequest:
		c.send(c.stackTrace(req))

	case *dap.ScopesRequest:
		c.send(c.scopes(req))

	case *dap.VariablesRequest:
		c.send(c.variables(req))

	case *dap.DisconnectRequest:
		c.ctrl.Stop()
		c.send(&dap.DisconnectResponse{Response: c.response(req.Seq, req.Command)})
		return true

	default:
		if r, ok := msg.(dap.RequestMessage); ok {
			resp := &dap.ErrorResponse{Response: c.response(r.GetRequest().Seq, r.GetRequest().Command)}
			c.fail(&resp.Response, fmt.Sprintf("unsupported request %q", r.GetRequest().Command))
			c.send(resp)
		}
	}
	return false
}

// setBreakpoints implements the DAP replace-all-per-file contract on top of
// the controller's add/remove operations.
func (c *client) setBreakpoints(req *dap.SetBreakpointsRequest) dap.Message {
	resp := &dap.SetBreakpointsResponse{Response: c.response(req.Seq, req.Command)}
	path := req.Arguments.Source.Path
	if path == "" {
		c.fail(&resp.Response, "source path required")
		return resp
	}

	existing := c.ctrl.ListBreakpoints()
	for _, bp := range append(existing.Active, existing.Pending...) {
		if sameFile(bp.File, path) {
			c.ctrl.ClearBreakpoint(bp.File, bp.Line)
		}
	}

	for _, want := range req.Arguments.Breakpoints {
		active := c.ctrl.SetBreakpoint(path, want.Line)
		resp.Body.Breakpoints = append(resp.Body.Breakpoints, dap.Breakpoint{
			Verified: active,
			Line:     want.Line,
			Source:   &dap.Source{Path: path},
		})
	}
	return resp
}

func (c *client) stackTrace(req *dap.StackTraceRequest) dap.Message {
	resp := &dap.StackTraceResponse{Response: c.response(req.Seq, req.Command)}
	levels := req.Arguments.Levels
	if levels == 0 {
		levels = -1
	}
	bt, ok := c.ctrl.Backtrace(uint64(req.Arguments.ThreadId), req.Arguments.StartFrame, levels)
	if !ok {
		c.fail(&resp.Response, "unknown thread")
		return resp
	}
	for _, f := range bt.Frames {
		frame := dap.StackFrame{
			Id:   c.frameRef(bt.ThreadID, f.Index),
			Name: f.ClassName + "." + f.MethodName,
			Line: f.Line,
		}
		if f.File != "" {
			frame.Source = &dap.Source{Name: filepath.Base(f.File), Path: f.File}
		}
		resp.Body.StackFrames = append(resp.Body.StackFrames, frame)
	}
	resp.Body.TotalFrames = len(bt.Frames)
	return resp
}

func (c *client) scopes(req *dap.ScopesRequest) dap.Message {
	resp := &dap.ScopesResponse{Response: c.response(req.Seq, req.Command)}
	resp.Body.Scopes = []dap.Scope{{
		Name:               "Locals",
		VariablesReference: req.Arguments.FrameId,
	}}
	return resp
}

func (c *client) variables(req *dap.VariablesRequest) dap.Message {
	resp := &dap.VariablesResponse{Response: c.response(req.Seq, req.Command)}
	key, ok := c.lookupFrameRef(req.Arguments.VariablesReference)
	if !ok {
		c.fail(&resp.Response, "unknown variables reference")
		return resp
	}
	bt, ok := c.ctrl.Backtrace(key.thread, key.frame, 1)
	if !ok || len(bt.Frames) == 0 {
		c.fail(&resp.Response, "frame gone")
		return resp
	}
	resp.Body.Variables = []dap.Variable{}
	for _, local := range bt.Frames[0].Locals {
		resp.Body.Variables = append(resp.Body.Variables, dap.Variable{
			Name:  local.Name,
			Value: local.Summary,
		})
	}
	return resp
}

// frameRef issues a stable reference for a (thread, frame) pair within this
// connection.
func (c *client) frameRef(thread uint64, frame int) int {
	c.scopeMu.Lock()
	defer c.scopeMu.Unlock()
	for ref, key := range c.scopeRefs {
		if key.thread == thread && key.frame == frame {
			return ref
		}
	}
	c.nextRef++
	c.scopeRefs[c.nextRef] = frameKey{thread: thread, frame: frame}
	return c.nextRef
}

func (c *client) lookupFrameRef(ref int) (frameKey, bool) {
	c.scopeMu.Lock()
	defer c.scopeMu.Unlock()
	key, ok := c.scopeRefs[ref]
	return key, ok
}

// --- message plumbing ---

func (c *client) nextSeq() int {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.seq++
	return c.seq
}

func (c *client) response(requestSeq int, command string) dap.Response {
	return dap.Response{
		ProtocolMessage: dap.ProtocolMessage{Seq: c.nextSeq(), Type: "response"},
		RequestSeq:      requestSeq,
		Command:         command,
		Success:         true,
	}
}

func (c *client) event(name string) dap.Event {
	return dap.Event{
		ProtocolMessage: dap.ProtocolMessage{Seq: c.nextSeq(), Type: "event"},
		Event:           name,
	}
}

func (c *client) fail(resp *dap.Response, message string) {
	resp.Success = false
	resp.Message = message
}

func (c *client) send(msg dap.Message) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := dap.WriteProtocolMessage(c.conn, msg); err != nil {
		log.Printf("DAP gateway: write: %v", err)
	}
}

func sameFile(a, b string) bool {
	return a == b || filepath.Base(a) == filepath.Base(b)
}
