// Package logging provides the structured logging used by authflow's
// command line layer.
//
// It is a thin layer over log/slog that tags every entry with a subsystem
// name and supports level filtering configured from flags or config.yaml.
//
// # Usage
//
//	import "authflow/pkg/logging"
//
//	logging.InitForCLI(logging.LevelInfo, os.Stderr)
//
//	logging.Info("Config", "Loaded configuration from %s", configPath)
//	logging.Warn("Login", "Browser could not be opened")
//	logging.Error("Store", err, "Failed to persist credential")
//
// InitForCLI also installs the logger as the slog default, so packages that
// log through log/slog (internal/oauth, pkg/oauth) share the same handler
// and level.
//
// # Audit Logging
//
// Credential writes and removals are recorded as audit events:
//
//	logging.Audit(logging.AuditEvent{
//	    Action:  "credential_saved",
//	    Outcome: "success",
//	    Target:  name,
//	})
//
// Audit events are logged at INFO level with an [AUDIT] prefix. Token values
// are never part of an audit event.
package logging
