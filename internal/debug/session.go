package debug

import (
	"context"
	"log"
	"net"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/ctagard/jdb-mcp/internal/jdi"
	"github.com/ctagard/jdb-mcp/pkg/types"
)

// Session encapsulates the live connection to one target VM: the VM handle,
// the identity cache, the location resolver, and the installed breakpoint
// requests. All methods are called from the controller's mailbox goroutine;
// the vm mutex additionally serializes target interactions so a disconnect
// detected on one request is never observed mid-flight by another.
type Session struct {
	ID     string
	Mode   types.SessionMode
	Target string

	vm   jdi.VirtualMachine
	vmMu sync.Mutex

	cache    *IdentityCache
	resolver *locationResolver

	installed []installedBreakpoint

	disposeOnce sync.Once
}

type installedBreakpoint struct {
	req  jdi.BreakpointRequest
	file string
	line int
}

// launchSession starts a new target process with suspend=true so
// breakpoints can be installed before user code runs.
func launchSession(ctx context.Context, connector jdi.Connector, command, classpath, vmArgs []string) (*Session, error) {
	vm, err := connector.Launch(ctx, jdi.LaunchOptions{
		Command:   command,
		Classpath: classpath,
		VMArgs:    vmArgs,
		Suspend:   true,
	})
	if err != nil {
		return nil, err
	}
	s := &Session{
		ID:       uuid.New().String(),
		Mode:     types.ModeLaunch,
		Target:   strings.Join(command, " "),
		vm:       vm,
		cache:    NewIdentityCache(),
		resolver: newLocationResolver(),
	}
	if err := s.enableEventRequests(); err != nil {
		_ = vm.Dispose()
		return nil, err
	}
	return s, nil
}

// attachSession connects to a running target VM and resumes it, a no-op if
// the remote is already running. No output relays exist in attach mode.
func attachSession(ctx context.Context, connector jdi.Connector, host string, port int) (*Session, error) {
	vm, err := connector.Attach(ctx, host, port)
	if err != nil {
		return nil, err
	}
	s := &Session{
		ID:       uuid.New().String(),
		Mode:     types.ModeAttach,
		Target:   addr(host, port),
		vm:       vm,
		cache:    NewIdentityCache(),
		resolver: newLocationResolver(),
	}
	if err := s.enableEventRequests(); err != nil {
		_ = vm.Dispose()
		return nil, err
	}
	if err := vm.Resume(); err != nil && !jdi.IsDisconnected(err) {
		log.Printf("attach: initial resume: %v", err)
	}
	return s, nil
}

func addr(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}

// enableEventRequests installs the standing event requests: class-prepare
// (suspend-all, so pending breakpoints install before code in the new class
// runs), thread lifecycle (suspend-none), and uncaught exceptions
// (suspend-all).
func (s *Session) enableEventRequests() error {
	erm := s.vm.EventRequests()
	reqs := []func() (jdi.EventRequest, error){
		func() (jdi.EventRequest, error) { return erm.CreateClassPrepareRequest(jdi.SuspendAll) },
		func() (jdi.EventRequest, error) { return erm.CreateThreadStartRequest(jdi.SuspendNone) },
		func() (jdi.EventRequest, error) { return erm.CreateThreadDeathRequest(jdi.SuspendNone) },
		func() (jdi.EventRequest, error) { return erm.CreateExceptionRequest(false, true, jdi.SuspendAll) },
	}
	for _, create := range reqs {
		req, err := create()
		if err != nil {
			return err
		}
		if err := req.Enable(); err != nil {
			return err
		}
	}
	return nil
}

// Info returns the client-facing session description.
func (s *Session) Info(status types.SessionStatus) types.SessionInfo {
	info := types.SessionInfo{
		SessionID: s.ID,
		Mode:      s.Mode,
		Status:    status,
		Target:    s.Target,
	}
	if p := s.vm.Process(); p != nil {
		info.PID = p.Pid()
	}
	return info
}

// initLocationMap registers every currently loaded class with the location
// resolver. Classes without source information are skipped.
func (s *Session) initLocationMap() error {
	s.vmMu.Lock()
	defer s.vmMu.Unlock()
	classes, err := s.vm.AllClasses()
	if err != nil {
		return err
	}
	for _, rt := range classes {
		s.resolver.addClass(rt)
	}
	return nil
}

// registerClass adds a freshly prepared class to the location resolver and
// returns its file key.
func (s *Session) registerClass(rt jdi.ReferenceType) (string, bool) {
	return s.resolver.addClass(rt)
}

// locations resolves file and line to concrete code locations in loaded
// classes.
func (s *Session) locations(file string, line int) []jdi.Location {
	s.vmMu.Lock()
	defer s.vmMu.Unlock()
	return s.resolver.locations(file, line)
}

// setBreakpoint installs a suspend-all breakpoint request at every concrete
// location for file and line. Returns true iff at least one request was
// installed.
func (s *Session) setBreakpoint(file string, line int) (bool, error) {
	locs := s.locations(file, line)
	s.vmMu.Lock()
	defer s.vmMu.Unlock()
	installed := 0
	erm := s.vm.EventRequests()
	for _, loc := range locs {
		req, err := erm.CreateBreakpointRequest(loc, jdi.SuspendAll)
		if err != nil {
			return installed > 0, err
		}
		if err := req.Enable(); err != nil {
			return installed > 0, err
		}
		s.installed = append(s.installed, installedBreakpoint{req: req, file: file, line: line})
		installed++
	}
	return installed > 0, nil
}

// clearBreakpoints disables and deletes any installed requests whose
// position matches a breakpoint in the set.
func (s *Session) clearBreakpoints(bps []types.Breakpoint) error {
	s.vmMu.Lock()
	defer s.vmMu.Unlock()
	erm := s.vm.EventRequests()
	var kept []installedBreakpoint
	var firstErr error
	for _, in := range s.installed {
		matched := false
		for _, bp := range bps {
			if in.file == bp.File && in.line == bp.Line {
				matched = true
				break
			}
		}
		if !matched {
			kept = append(kept, in)
			continue
		}
		if err := in.req.Disable(); err != nil && firstErr == nil {
			firstErr = err
		}
		if err := erm.Delete(in.req); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	s.installed = kept
	return firstErr
}

// clearAllBreakpoints removes every breakpoint request from the target.
func (s *Session) clearAllBreakpoints() error {
	s.vmMu.Lock()
	defer s.vmMu.Unlock()
	s.installed = nil
	return s.vm.EventRequests().ClearAllBreakpoints()
}

// newStepRequest deletes all existing step requests (only one step is ever
// pending), installs a new one bounded by a count filter of 1, and resumes
// the target.
func (s *Session) newStepRequest(thread jdi.ThreadID, size jdi.StepSize, depth jdi.StepDepth) error {
	s.vmMu.Lock()
	defer s.vmMu.Unlock()
	erm := s.vm.EventRequests()
	for _, req := range erm.StepRequests() {
		if err := erm.Delete(req); err != nil {
			return err
		}
	}
	req, err := erm.CreateStepRequest(thread, size, depth, jdi.SuspendAll, 1)
	if err != nil {
		return err
	}
	if err := req.Enable(); err != nil {
		return err
	}
	return s.vm.Resume()
}

// threadByID scans the target's live threads for the given ID.
func (s *Session) threadByID(id jdi.ThreadID) (jdi.ThreadReference, error) {
	s.vmMu.Lock()
	defer s.vmMu.Unlock()
	threads, err := s.vm.AllThreads()
	if err != nil {
		return nil, err
	}
	for _, t := range threads {
		if t.UniqueID() == id {
			return t, nil
		}
	}
	return nil, nil
}

// resume resumes all threads of the target.
func (s *Session) resume() error {
	s.vmMu.Lock()
	defer s.vmMu.Unlock()
	return s.vm.Resume()
}

func (s *Session) canBeModified() bool {
	return s.vm.CanBeModified()
}

// dispose releases the connection and, for launched targets, kills the
// target process. Tolerates an already-disconnected state and repeated
// calls.
func (s *Session) dispose() {
	s.disposeOnce.Do(func() {
		s.vmMu.Lock()
		defer s.vmMu.Unlock()
		if err := s.vm.Dispose(); err != nil && !jdi.IsDisconnected(err) {
			log.Printf("session %s: dispose: %v", s.ID, err)
		}
		if p := s.vm.Process(); p != nil {
			if err := p.Kill(); err != nil {
				log.Printf("session %s: kill target: %v", s.ID, err)
			}
		}
		s.cache.Clear()
	})
}
