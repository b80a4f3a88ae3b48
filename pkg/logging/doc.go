// Package logging configures log/slog for the test proxy.
//
// Create a logger with desired configuration:
//
//	logger := logging.New(logging.Config{
//	    Level:  logging.ParseLevel("debug"),
//	    Format: logging.FormatJSON,
//	})
//
//	logger.Info("recording started", "session_id", id)
//
// Setting Config.File tees every record to a second writer as JSON, which
// keeps a machine-readable session log next to human-readable console
// output.
//
// Components accept a *slog.Logger through an option. If no logger is
// provided they use logging.Nop().
package logging
