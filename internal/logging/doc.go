// Package logging provides per-module slog loggers for framegrab.
//
// Records go to stdout when it is attached to something, to the systemd
// journal when journald is reachable, and always to an in-memory History
// served by the API. Each module has its own level, changeable at runtime:
//
//	logging.Initialize(logging.Config{
//		Level:   "info",
//		Format:  "text",
//		Modules: map[string]string{"acquisition": "debug"},
//	})
//	log := logging.GetLogger("acquisition")
//	log.Info("Acquisition started", "session", id)
//
// Journal entries carry SYSLOG_IDENTIFIER=framegrab and every attribute as
// an upper-case field:
//
//	journalctl -t framegrab MODULE=acquisition -f
//
// The matching TOML section:
//
//	[logging]
//	level = "info"
//	format = "text"
//
//	[logging.modules]
//	acquisition = "debug"
//	api = "warn"
package logging
