package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/ctagard/jdb-mcp/internal/config"
	"github.com/ctagard/jdb-mcp/internal/dapserver"
	"github.com/ctagard/jdb-mcp/internal/debug"
	"github.com/ctagard/jdb-mcp/internal/jdwp"
	"github.com/ctagard/jdb-mcp/internal/mcp"
	"github.com/ctagard/jdb-mcp/internal/version"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "", "Path to configuration file")
	mode := flag.String("mode", "full", "Capability mode: 'readonly' or 'full'")
	dapAddr := flag.String("dap", "", "Optional listen address for the DAP gateway, e.g. 127.0.0.1:5009")
	showVersion := flag.Bool("version", false, "Show version and exit")
	help := flag.Bool("help", false, "Show help and exit")

	flag.Parse()

	if *showVersion {
		fmt.Printf("jdb-mcp version %s\n", version.GetVersion())
		os.Exit(0)
	}

	if *help {
		printHelp()
		os.Exit(0)
	}

	// Load configuration
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Override mode from command line
	if *mode == "readonly" {
		cfg.Mode = config.ModeReadOnly
	} else if *mode == "full" {
		cfg.Mode = config.ModeFull
	}

	// Wire the controller over the JDWP connectors and an event broadcaster
	connector := &jdwp.LaunchingConnector{JavaPath: cfg.JavaPath}
	events := debug.NewBroadcaster()
	controller := debug.NewController(cfg, connector, events)

	server := mcp.NewServer(cfg, controller, events)

	// Optional editor-facing DAP gateway
	var gateway *dapserver.Server
	if *dapAddr != "" {
		gateway = dapserver.New(controller, events)
		go func() {
			if err := gateway.ListenAndServe(*dapAddr); err != nil {
				log.Printf("DAP gateway: %v", err)
			}
		}()
	}

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		log.Println("Shutting down...")
		if gateway != nil {
			gateway.Close()
		}
		server.Close()
		os.Exit(0)
	}()

	// Start serving via stdio
	log.Println("jdb-mcp server starting...")
	if err := server.ServeStdio(); err != nil {
		if gateway != nil {
			gateway.Close()
		}
		server.Close()
		log.Fatalf("Server error: %v", err)
	}
	if gateway != nil {
		gateway.Close()
	}
	server.Close()
}

func printHelp() {
	fmt.Println(`jdb-mcp: JVM Debug Control MCP Server

A Model Context Protocol (MCP) server that drives a JVM target over the
Java Debug Wire Protocol (JDWP), enabling AI agents and editors to set
breakpoints, step, and inspect program state at runtime.

USAGE:
    jdb-mcp [OPTIONS]

OPTIONS:
    -config <path>     Path to configuration file (JSON)
    -mode <mode>       Capability mode: 'readonly' or 'full' (default: full)
    -dap <addr>        Also serve editors over DAP on this TCP address
    -version           Show version and exit
    -help              Show this help message

CONFIGURATION:
    Create a JSON configuration file to describe the target:

    {
        "mode": "full",
        "allowLaunch": true,
        "allowAttach": true,
        "allowModify": true,
        "allowInvoke": true,
        "javaPath": "java",
        "classpath": ["build/classes", "lib/app.jar"],
        "vmArgs": ["-Xmx512m"],
        "sourceRoots": ["src/main/scala"],
        "sourceFiles": [],
        "profiles": {
            "server": {
                "mainClass": "pkg.Main",
                "args": ["--port", "8080"]
            }
        }
    }

MCP INTEGRATION:
    Add to your MCP client configuration:

    Claude Code (~/.claude.json):
    {
        "mcpServers": {
            "jdb-mcp": {
                "command": "jdb-mcp",
                "args": ["--mode", "full", "--config", "debug.json"]
            }
        }
    }

TOOLS:
    Session Management:
        debug_start            Launch a target JVM under the debugger
        debug_attach           Attach to a JVM with a JDWP agent
        debug_stop             Dispose the session (breakpoints kept pending)
        debug_status           Session and breakpoint overview

    Inspection (read-only):
        debug_backtrace        Render a suspended thread's stack
        debug_locate           Find a name in scope
        debug_value            Dereference and marshal a debug location
        debug_to_string        Render a value via the target's toString()
        debug_list_breakpoints List active and pending breakpoints
        debug_events           Drain buffered asynchronous debug events

    Control (full mode only):
        debug_set_breakpoint        Set a breakpoint (pending until the class loads)
        debug_clear_breakpoint      Remove a breakpoint
        debug_clear_all_breakpoints Remove every breakpoint
        debug_continue              Resume the target VM
        debug_step                  Step over/into/out
        debug_set_variable          Write a stack slot

For more information, visit: https://github.com/ctagard/jdb-mcp`)
}
