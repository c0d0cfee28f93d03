package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ctagard/jdb-mcp/internal/errors"
	"github.com/ctagard/jdb-mcp/pkg/types"
)

// Session Management Handlers

func (s *Server) handleDebugStart(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if !s.config.CanLaunch() {
		return mcp.NewToolResultError(errors.PermissionDenied("launch", string(s.config.Mode)).Error()), nil
	}

	var command, classpath, vmArgs []string
	if profile, err := request.RequireString("profile"); err == nil && profile != "" {
		var perr error
		command, classpath, vmArgs, perr = s.config.Profile(profile)
		if perr != nil {
			return mcp.NewToolResultError(errors.ProfileNotFound(profile, s.profileNames()).Error()), nil
		}
	} else {
		mainClass, err := request.RequireString("mainClass")
		if err != nil {
			return mcp.NewToolResultError(errors.MissingParameter("mainClass",
				"Provide the fully qualified main class to run, or use profile to reference a configured launch profile.").Error()), nil
		}
		command = []string{mainClass}
		if argsJSON, err := request.RequireString("args"); err == nil && argsJSON != "" {
			var args []string
			if err := json.Unmarshal([]byte(argsJSON), &args); err != nil {
				return mcp.NewToolResultError(errors.InvalidParameter("args", argsJSON,
					"a JSON array of strings, e.g. [\"--port\", \"8080\"]").Error()), nil
			}
			command = append(command, args...)
		}
	}

	info, err := s.controller.Start(ctx, command, classpath, vmArgs)
	if err != nil {
		return mcp.NewToolResultError(errors.StartupFailure(command[0], err).Error()), nil
	}
	return jsonResult(info)
}

func (s *Server) handleDebugAttach(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if !s.config.CanAttach() {
		return mcp.NewToolResultError(errors.PermissionDenied("attach", string(s.config.Mode)).Error()), nil
	}

	host := "127.0.0.1"
	if h, err := request.RequireString("host"); err == nil && h != "" {
		host = h
	}
	port, err := request.RequireFloat("port")
	if err != nil {
		return mcp.NewToolResultError(errors.MissingParameter("port",
			"Provide the port of the target's JDWP agent, e.g. 5005.").Error()), nil
	}

	info, err := s.controller.Attach(ctx, host, int(port))
	if err != nil {
		return mcp.NewToolResultError(errors.StartupFailure(fmt.Sprintf("%s:%d", host, int(port)), err).Error()), nil
	}
	return jsonResult(info)
}

func (s *Server) handleDebugStop(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	stopped := s.controller.Stop()
	if !stopped {
		return mcp.NewToolResultError(errors.NoSession().Error()), nil
	}
	return jsonResult(map[string]interface{}{
		"stopped": true,
	})
}

func (s *Server) handleDebugStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	list := s.controller.ListBreakpoints()
	result := map[string]interface{}{
		"active":             s.controller.ActiveVM(),
		"activeBreakpoints":  len(list.Active),
		"pendingBreakpoints": len(list.Pending),
	}
	if info, ok := s.controller.SessionInfo(); ok {
		result["session"] = info
	}
	return jsonResult(result)
}

// Inspection Handlers

func (s *Server) handleDebugBacktrace(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	threadID, err := request.RequireFloat("threadId")
	if err != nil {
		return mcp.NewToolResultError(errors.MissingParameter("threadId",
			"Provide the thread ID from a break or step event.").Error()), nil
	}
	start := 0
	if v, err := request.RequireFloat("start"); err == nil {
		start = int(v)
	}
	count := -1
	if v, err := request.RequireFloat("count"); err == nil {
		count = int(v)
	}

	bt, ok := s.controller.Backtrace(uint64(threadID), start, count)
	if !ok {
		if !s.controller.ActiveVM() {
			return mcp.NewToolResultError(errors.Disconnected().Error()), nil
		}
		return mcp.NewToolResultError(errors.UnknownThread(uint64(threadID)).Error()), nil
	}
	return jsonResult(bt)
}

func (s *Server) handleDebugLocate(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	threadID, err := request.RequireFloat("threadId")
	if err != nil {
		return mcp.NewToolResultError(errors.MissingParameter("threadId", "Provide the thread ID.").Error()), nil
	}
	name, err := request.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(errors.MissingParameter("name",
			"Provide the variable or field name to locate, or 'this'.").Error()), nil
	}

	loc, ok := s.controller.LocateName(uint64(threadID), name)
	if !ok {
		return mcp.NewToolResultError(errors.ValueNotFound().WithDetails("name", name).Error()), nil
	}
	return jsonResult(loc)
}

func (s *Server) handleDebugValue(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	loc, errResult := locationParam(request)
	if errResult != nil {
		return errResult, nil
	}
	val, ok := s.controller.Value(loc)
	if !ok {
		return mcp.NewToolResultError(errors.ValueNotFound().Error()), nil
	}
	return jsonResult(val)
}

func (s *Server) handleDebugToString(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if !s.config.CanInvoke() {
		return mcp.NewToolResultError(errors.PermissionDenied("invoke", string(s.config.Mode)).Error()), nil
	}

	threadID, err := request.RequireFloat("threadId")
	if err != nil {
		return mcp.NewToolResultError(errors.MissingParameter("threadId",
			"Provide a thread suspended by an event; the target's toString() runs in it.").Error()), nil
	}
	loc, errResult := locationParam(request)
	if errResult != nil {
		return errResult, nil
	}

	text, ok := s.controller.ToString(uint64(threadID), loc)
	if !ok {
		// Triage the failure: dead session, dangling location, read-only
		// target, or a toString invocation that did not complete.
		if !s.controller.ActiveVM() {
			return mcp.NewToolResultError(errors.Disconnected().Error()), nil
		}
		if _, found := s.controller.Value(loc); !found {
			return mcp.NewToolResultError(errors.ValueNotFound().Error()), nil
		}
		if !s.controller.CanModifyTarget() {
			return mcp.NewToolResultError(errors.ReadOnlyTarget().Error()), nil
		}
		return mcp.NewToolResultError(errors.InvokeFailed(
			fmt.Errorf("toString() did not complete in thread %d", uint64(threadID))).Error()), nil
	}
	return jsonResult(map[string]interface{}{
		"text": text,
	})
}

func (s *Server) handleDebugListBreakpoints(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.controller.ListBreakpoints())
}

func (s *Server) handleDebugEvents(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	events := s.events.Drain()
	if events == nil {
		events = []types.DebugEvent{}
	}
	return jsonResult(map[string]interface{}{
		"events": events,
	})
}

// Control Handlers

func (s *Server) handleDebugSetBreakpoint(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	file, err := request.RequireString("file")
	if err != nil {
		return mcp.NewToolResultError(errors.MissingParameter("file",
			"Provide the source file, e.g. Foo.scala or /project/src/Foo.scala.").Error()), nil
	}
	line, err := request.RequireFloat("line")
	if err != nil {
		return mcp.NewToolResultError(errors.MissingParameter("line", "Provide the 1-based line number.").Error()), nil
	}

	active := s.controller.SetBreakpoint(file, int(line))
	result := map[string]interface{}{
		"file":   file,
		"line":   int(line),
		"active": active,
	}
	if !active {
		result["note"] = errors.LocationUnresolved(file, int(line)).Hint
	}
	return jsonResult(result)
}

func (s *Server) handleDebugClearBreakpoint(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	file, err := request.RequireString("file")
	if err != nil {
		return mcp.NewToolResultError(errors.MissingParameter("file", "Provide the source file of the breakpoint.").Error()), nil
	}
	line, err := request.RequireFloat("line")
	if err != nil {
		return mcp.NewToolResultError(errors.MissingParameter("line", "Provide the line number of the breakpoint.").Error()), nil
	}

	s.controller.ClearBreakpoint(file, int(line))
	return jsonResult(map[string]interface{}{
		"cleared": true,
	})
}

func (s *Server) handleDebugClearAllBreakpoints(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.controller.ClearAllBreakpoints()
	return jsonResult(map[string]interface{}{
		"cleared": true,
	})
}

func (s *Server) handleDebugContinue(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	threadID := uint64(0)
	if v, err := request.RequireFloat("threadId"); err == nil {
		threadID = uint64(v)
	}
	if !s.controller.Continue(threadID) {
		return mcp.NewToolResultError(errors.NoSession().Error()), nil
	}
	return jsonResult(map[string]interface{}{
		"resumed": true,
	})
}

func (s *Server) handleDebugStep(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	threadID, err := request.RequireFloat("threadId")
	if err != nil {
		return mcp.NewToolResultError(errors.MissingParameter("threadId", "Provide the thread ID to step.").Error()), nil
	}
	stepType, err := request.RequireString("type")
	if err != nil {
		return mcp.NewToolResultError(errors.MissingParameter("type",
			"Provide the step type: 'over', 'into' or 'out'.").Error()), nil
	}

	var ok bool
	switch stepType {
	case "over":
		ok = s.controller.Next(uint64(threadID))
	case "into":
		ok = s.controller.Step(uint64(threadID))
	case "out":
		ok = s.controller.StepOut(uint64(threadID))
	default:
		return mcp.NewToolResultError(errors.InvalidParameter("type", stepType, "'over', 'into' or 'out'").Error()), nil
	}
	if !ok {
		return mcp.NewToolResultError(errors.UnknownThread(uint64(threadID)).Error()), nil
	}
	return jsonResult(map[string]interface{}{
		"stepped": stepType,
	})
}

func (s *Server) handleDebugSetVariable(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if !s.config.CanModifyValues() {
		return mcp.NewToolResultError(errors.PermissionDenied("modify", string(s.config.Mode)).Error()), nil
	}

	threadID, err := request.RequireFloat("threadId")
	if err != nil {
		return mcp.NewToolResultError(errors.MissingParameter("threadId", "Provide the thread ID.").Error()), nil
	}
	frame, err := request.RequireFloat("frame")
	if err != nil {
		return mcp.NewToolResultError(errors.MissingParameter("frame", "Provide the frame index from debug_backtrace.").Error()), nil
	}
	slot, err := request.RequireFloat("slot")
	if err != nil {
		return mcp.NewToolResultError(errors.MissingParameter("slot", "Provide the variable slot from debug_backtrace locals.").Error()), nil
	}
	value, err := request.RequireString("value")
	if err != nil {
		return mcp.NewToolResultError(errors.MissingParameter("value", "Provide the literal to write.").Error()), nil
	}

	loc := types.StackSlot(uint64(threadID), int(frame), int(slot))
	if !s.controller.SetValue(loc, value) {
		return mcp.NewToolResultError(errors.ParseFailed(value, "the slot's type").Error()), nil
	}
	return jsonResult(map[string]interface{}{
		"written": true,
	})
}

// Helpers

// locationParam decodes the JSON "location" parameter.
func locationParam(request mcp.CallToolRequest) (types.DebugLocation, *mcp.CallToolResult) {
	raw, err := request.RequireString("location")
	if err != nil {
		return types.DebugLocation{}, mcp.NewToolResultError(errors.MissingParameter("location",
			"Provide a JSON debug location, e.g. {\"kind\":\"reference\",\"objectId\":1234}.").Error())
	}
	var loc types.DebugLocation
	if err := json.Unmarshal([]byte(raw), &loc); err != nil {
		return types.DebugLocation{}, mcp.NewToolResultError(errors.InvalidParameter("location", raw,
			"a JSON object with kind 'reference', 'field', 'element' or 'slot'").Error())
	}
	switch loc.Kind {
	case types.LocObjectRef, types.LocObjectField, types.LocArrayElement, types.LocStackSlot:
		return loc, nil
	default:
		return types.DebugLocation{}, mcp.NewToolResultError(errors.InvalidParameter("location.kind", string(loc.Kind),
			"'reference', 'field', 'element' or 'slot'").Error())
	}
}

func (s *Server) profileNames() []string {
	names := make([]string, 0, len(s.config.Profiles))
	for name := range s.config.Profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func jsonResult(data interface{}) (*mcp.CallToolResult, error) {
	jsonBytes, err := json.Marshal(data)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(jsonBytes)), nil
}
