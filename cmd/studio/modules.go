package main

// Compiled modules. Each registers itself with the core registry at init.
import (
	_ "github.com/joeblack2k/openclaw-studio-sub002/internal/approval"
	_ "github.com/joeblack2k/openclaw-studio-sub002/internal/audit"
	_ "github.com/joeblack2k/openclaw-studio-sub002/internal/cron"
	_ "github.com/joeblack2k/openclaw-studio-sub002/internal/gateway"
	_ "github.com/joeblack2k/openclaw-studio-sub002/internal/mcpserver"
	_ "github.com/joeblack2k/openclaw-studio-sub002/internal/runtime"
	_ "github.com/joeblack2k/openclaw-studio-sub002/internal/state"
	_ "github.com/joeblack2k/openclaw-studio-sub002/internal/telemetry"
)
