// Package logging routes slog output to a rotating file under
// ~/.scholia/logs/ so command output stays clean. Foreground commands
// like watch mirror records to stderr; --debug raises the level and
// records source positions.
package logging
