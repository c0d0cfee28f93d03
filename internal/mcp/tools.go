package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// registerTools registers the consolidated debug tool API
func (s *Server) registerTools() {
	// Session management (both modes)
	s.registerDebugStart()
	s.registerDebugAttach()
	s.registerDebugStop()
	s.registerDebugStatus()

	// Inspection (both modes)
	s.registerDebugBacktrace()
	s.registerDebugLocate()
	s.registerDebugValue()
	s.registerDebugToString()
	s.registerDebugListBreakpoints()
	s.registerDebugEvents()

	// Control (full mode only)
	if s.config.CanUseControlTools() {
		s.registerDebugSetBreakpoint()
		s.registerDebugClearBreakpoint()
		s.registerDebugClearAllBreakpoints()
		s.registerDebugContinue()
		s.registerDebugStep()
		s.registerDebugSetVariable()
	}
}

// Session Management Tools

func (s *Server) registerDebugStart() {
	tool := mcp.NewTool("debug_start",
		mcp.WithDescription("Launch a target JVM under the debugger. The VM starts suspended so breakpoints can be installed, then runs. Use mainClass directly OR profile to reference a named launch profile from the configuration."),
		mcp.WithString("mainClass",
			mcp.Description("Fully qualified main class to run. Not required if profile is provided."),
		),
		mcp.WithString("args",
			mcp.Description("JSON array of program arguments, e.g. [\"--port\", \"8080\"]"),
		),
		mcp.WithString("profile",
			mcp.Description("Name of a launch profile from the configuration file. Overrides mainClass and args."),
		),
	)
	s.mcpServer.AddTool(tool, s.handleDebugStart)
}

func (s *Server) registerDebugAttach() {
	tool := mcp.NewTool("debug_attach",
		mcp.WithDescription("Attach to a JVM already running with a JDWP agent (java -agentlib:jdwp=transport=dt_socket,server=y,...). Pending breakpoints install as their classes are found."),
		mcp.WithString("host",
			mcp.Description("Host of the JDWP agent (default: 127.0.0.1)"),
		),
		mcp.WithNumber("port",
			mcp.Required(),
			mcp.Description("Port of the JDWP agent"),
		),
	)
	s.mcpServer.AddTool(tool, s.handleDebugAttach)
}

func (s *Server) registerDebugStop() {
	tool := mcp.NewTool("debug_stop",
		mcp.WithDescription("Dispose the active debug session. Active breakpoints are kept as pending and re-install in the next session."),
	)
	s.mcpServer.AddTool(tool, s.handleDebugStop)
}

func (s *Server) registerDebugStatus() {
	tool := mcp.NewTool("debug_status",
		mcp.WithDescription("Report whether a session is active, its target, and the breakpoint counts."),
	)
	s.mcpServer.AddTool(tool, s.handleDebugStatus)
}

// Inspection Tools

func (s *Server) registerDebugBacktrace() {
	tool := mcp.NewTool("debug_backtrace",
		mcp.WithDescription("Render the stack of a suspended thread: class, method, source position, locals and this-object ID per frame. Object IDs can be dereferenced with debug_value."),
		mcp.WithNumber("threadId",
			mcp.Required(),
			mcp.Description("The thread ID, from a break/step event"),
		),
		mcp.WithNumber("start",
			mcp.Description("First frame index (default: 0)"),
		),
		mcp.WithNumber("count",
			mcp.Description("Number of frames, -1 for all (default: -1)"),
		),
	)
	s.mcpServer.AddTool(tool, s.handleDebugBacktrace)
}

func (s *Server) registerDebugLocate() {
	tool := mcp.NewTool("debug_locate",
		mcp.WithDescription("Find a name in the scope of a suspended thread: 'this', then visible locals from the top frame down, then fields of the top frame's this object. Returns a debug location usable with debug_value and debug_to_string."),
		mcp.WithNumber("threadId",
			mcp.Required(),
			mcp.Description("The thread ID"),
		),
		mcp.WithString("name",
			mcp.Required(),
			mcp.Description("The variable or field name to locate, or 'this'"),
		),
	)
	s.mcpServer.AddTool(tool, s.handleDebugLocate)
}

func (s *Server) registerDebugValue() {
	tool := mcp.NewTool("debug_value",
		mcp.WithDescription("Dereference a debug location and return the marshaled value with summary and fields. Locations come from debug_locate, backtraces and events."),
		mcp.WithString("location",
			mcp.Required(),
			mcp.Description("JSON debug location, e.g. {\"kind\":\"slot\",\"threadId\":1,\"frame\":0,\"offset\":2} or {\"kind\":\"reference\",\"objectId\":1234}"),
		),
	)
	s.mcpServer.AddTool(tool, s.handleDebugValue)
}

func (s *Server) registerDebugToString() {
	tool := mcp.NewTool("debug_to_string",
		mcp.WithDescription("Render a value the way the target prints it: strings as text, arrays as a length summary, objects via the target's toString() invoked in the given thread. Needs the allowInvoke permission and a modifiable target."),
		mcp.WithNumber("threadId",
			mcp.Required(),
			mcp.Description("The thread to invoke toString() in; must be suspended by an event"),
		),
		mcp.WithString("location",
			mcp.Required(),
			mcp.Description("JSON debug location (same shape as debug_value)"),
		),
	)
	s.mcpServer.AddTool(tool, s.handleDebugToString)
}

func (s *Server) registerDebugListBreakpoints() {
	tool := mcp.NewTool("debug_list_breakpoints",
		mcp.WithDescription("List all breakpoints, split into active (installed in the target) and pending (waiting for their class to load)."),
	)
	s.mcpServer.AddTool(tool, s.handleDebugListBreakpoints)
}

func (s *Server) registerDebugEvents() {
	tool := mcp.NewTool("debug_events",
		mcp.WithDescription("Drain buffered asynchronous debug events: break/step/exception stops, thread lifecycle, target output, and background messages. Events are removed once drained."),
	)
	s.mcpServer.AddTool(tool, s.handleDebugEvents)
}

// Control Tools (Full mode only)

func (s *Server) registerDebugSetBreakpoint() {
	tool := mcp.NewTool("debug_set_breakpoint",
		mcp.WithDescription("Set a breakpoint by source file and line. If the class is not loaded yet the breakpoint is recorded as pending and installs automatically when the class loads."),
		mcp.WithString("file",
			mcp.Required(),
			mcp.Description("Source file, short name (Foo.scala) or absolute path"),
		),
		mcp.WithNumber("line",
			mcp.Required(),
			mcp.Description("1-based line number"),
		),
	)
	s.mcpServer.AddTool(tool, s.handleDebugSetBreakpoint)
}

func (s *Server) registerDebugClearBreakpoint() {
	tool := mcp.NewTool("debug_clear_breakpoint",
		mcp.WithDescription("Remove a breakpoint by source file and line, from both the target and the pending set."),
		mcp.WithString("file",
			mcp.Required(),
			mcp.Description("Source file, short name or absolute path"),
		),
		mcp.WithNumber("line",
			mcp.Required(),
			mcp.Description("1-based line number"),
		),
	)
	s.mcpServer.AddTool(tool, s.handleDebugClearBreakpoint)
}

func (s *Server) registerDebugClearAllBreakpoints() {
	tool := mcp.NewTool("debug_clear_all_breakpoints",
		mcp.WithDescription("Remove every breakpoint, active and pending."),
	)
	s.mcpServer.AddTool(tool, s.handleDebugClearAllBreakpoints)
}

func (s *Server) registerDebugContinue() {
	tool := mcp.NewTool("debug_continue",
		mcp.WithDescription("Resume the target VM. Resumes all threads; watch debug_events for the next stop."),
		mcp.WithNumber("threadId",
			mcp.Description("Accepted for symmetry with step tools; the whole VM resumes regardless"),
		),
	)
	s.mcpServer.AddTool(tool, s.handleDebugContinue)
}

func (s *Server) registerDebugStep() {
	tool := mcp.NewTool("debug_step",
		mcp.WithDescription("Execute a line step in a suspended thread. Use type='over' for the next line, 'into' to enter calls, 'out' to finish the current frame. A step event arrives via debug_events."),
		mcp.WithNumber("threadId",
			mcp.Required(),
			mcp.Description("The thread ID to step"),
		),
		mcp.WithString("type",
			mcp.Required(),
			mcp.Description("Step type: 'over', 'into' or 'out'"),
		),
	)
	s.mcpServer.AddTool(tool, s.handleDebugStep)
}

func (s *Server) registerDebugSetVariable() {
	tool := mcp.NewTool("debug_set_variable",
		mcp.WithDescription("Write a new value into a stack slot of a suspended thread. Only stack slots are writable; parse the literal per the slot's type (42, 3.14, true, 'c', \"text\")."),
		mcp.WithNumber("threadId",
			mcp.Required(),
			mcp.Description("The thread ID"),
		),
		mcp.WithNumber("frame",
			mcp.Required(),
			mcp.Description("Frame index from debug_backtrace"),
		),
		mcp.WithNumber("slot",
			mcp.Required(),
			mcp.Description("Variable slot from debug_backtrace locals"),
		),
		mcp.WithString("value",
			mcp.Required(),
			mcp.Description("The literal to parse and write"),
		),
	)
	s.mcpServer.AddTool(tool, s.handleDebugSetVariable)
}
