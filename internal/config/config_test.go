package config

import (
	stderrors "errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/ctagard/jdb-mcp/internal/errors"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Mode != ModeFull {
		t.Errorf("default mode = %s", cfg.Mode)
	}
	if cfg.JavaPath != "java" {
		t.Errorf("default javaPath = %s", cfg.JavaPath)
	}
	if !cfg.CanLaunch() || !cfg.CanAttach() || !cfg.CanModifyValues() || !cfg.CanInvoke() {
		t.Errorf("default permissions too restrictive")
	}
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	content := `{
		"mode": "readonly",
		"javaPath": "/usr/lib/jvm/bin/java",
		"classpath": ["build", "lib/app.jar"],
		"vmArgs": ["-Xmx256m"],
		"sourceRoots": ["src"],
		"profiles": {
			"app": {"mainClass": "pkg.Main", "args": ["-v"]}
		}
	}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Mode != ModeReadOnly {
		t.Errorf("mode = %s", cfg.Mode)
	}
	if cfg.CanUseControlTools() {
		t.Errorf("readonly mode exposes control tools")
	}
	if cfg.CanModifyValues() {
		t.Errorf("readonly mode allows modification")
	}
	if len(cfg.Classpath) != 2 || cfg.Classpath[0] != "build" {
		t.Errorf("classpath = %v", cfg.Classpath)
	}

	command, classpath, vmArgs, err := cfg.Profile("app")
	if err != nil {
		t.Fatalf("Profile: %v", err)
	}
	if len(command) != 2 || command[0] != "pkg.Main" || command[1] != "-v" {
		t.Errorf("profile command = %v", command)
	}
	if len(classpath) != 2 {
		t.Errorf("profile classpath = %v", classpath)
	}
	if len(vmArgs) != 1 || vmArgs[0] != "-Xmx256m" {
		t.Errorf("profile vmArgs = %v", vmArgs)
	}
}

func TestProfileOverridesClasspath(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Classpath = []string{"base"}
	cfg.VMArgs = []string{"-Xmx1g"}
	cfg.Profiles = map[string]Profile{
		"special": {MainClass: "pkg.Special", Classpath: []string{"other"}, VMArgs: []string{"-Dflag=1"}},
	}

	_, classpath, vmArgs, err := cfg.Profile("special")
	if err != nil {
		t.Fatal(err)
	}
	if len(classpath) != 1 || classpath[0] != "other" {
		t.Errorf("classpath = %v", classpath)
	}
	if len(vmArgs) != 2 || vmArgs[1] != "-Dflag=1" {
		t.Errorf("vmArgs = %v", vmArgs)
	}
}

func TestProfileNotFound(t *testing.T) {
	cfg := DefaultConfig()
	if _, _, _, err := cfg.Profile("ghost"); err == nil {
		t.Errorf("missing profile did not error")
	}
}

func TestAllowInvokeFlag(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AllowInvoke = false
	if cfg.CanInvoke() {
		t.Errorf("CanInvoke true with allowInvoke disabled")
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig("/does/not/exist.json")
	if err == nil {
		t.Fatalf("missing file did not error")
	}
	var de *errors.DebugError
	if !stderrors.As(err, &de) || de.Code != errors.CodeConfigInvalid {
		t.Errorf("missing file error = %v, want a CONFIG_INVALID DebugError", err)
	}
}

func TestLoadConfigBadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := LoadConfig(path)
	if err == nil {
		t.Fatalf("malformed file did not error")
	}
	var de *errors.DebugError
	if !stderrors.As(err, &de) || de.Code != errors.CodeConfigInvalid {
		t.Errorf("malformed file error = %v, want a CONFIG_INVALID DebugError", err)
	}
}
