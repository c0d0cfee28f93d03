// Package mcp provides the Model Context Protocol (MCP) server implementation.
//
// This package exposes the debug controller through MCP tools that can be
// used by AI assistants and other MCP clients:
//
// Session Management (always available):
//   - debug_start: Launch a target JVM under the debugger
//   - debug_attach: Attach to a JVM running with a JDWP agent
//   - debug_stop: Dispose the active session
//   - debug_status: Session and breakpoint overview
//
// Inspection (always available):
//   - debug_backtrace: Render a thread's stack
//   - debug_locate: Find a name in a suspended thread's scope
//   - debug_value: Dereference and marshal a debug location
//   - debug_to_string: Render a value the way the target prints it
//   - debug_list_breakpoints: List active and pending breakpoints
//   - debug_events: Drain buffered asynchronous debug events
//
// Control (full mode only):
//   - debug_set_breakpoint / debug_clear_breakpoint / debug_clear_all_breakpoints
//   - debug_continue: Resume the target VM
//   - debug_step: Step over/into/out
//   - debug_set_variable: Write a stack slot
package mcp

import (
	"github.com/mark3labs/mcp-go/server"

	"github.com/ctagard/jdb-mcp/internal/config"
	"github.com/ctagard/jdb-mcp/internal/debug"
	"github.com/ctagard/jdb-mcp/internal/version"
)

// Server wraps the MCP server with debugging capabilities
type Server struct {
	mcpServer  *server.MCPServer
	controller *debug.Controller
	events     *debug.Broadcaster
	config     *config.Config
}

// NewServer creates a new jdb-mcp server over an existing controller and
// its event broadcaster.
func NewServer(cfg *config.Config, controller *debug.Controller, events *debug.Broadcaster) *Server {
	mcpServer := server.NewMCPServer(
		"jdb-mcp",
		version.Version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
	)

	s := &Server{
		mcpServer:  mcpServer,
		controller: controller,
		events:     events,
		config:     cfg,
	}

	// Register all tools
	s.registerTools()

	return s
}

// registerTools is defined in tools.go

// ServeStdio starts the server using stdio transport
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// Close shuts down the controller behind the server.
func (s *Server) Close() {
	s.controller.Shutdown()
}

// GetController returns the debug controller
func (s *Server) GetController() *debug.Controller {
	return s.controller
}

// GetConfig returns the server configuration
func (s *Server) GetConfig() *config.Config {
	return s.config
}
