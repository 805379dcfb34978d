package log

import "context"

// Logger is the structured logger handed to the HTTP server and the commands.
// Entries logged with a context carrying a span get its trace and span ids.
// There is no Fatal level: commands return errors and exit from main.
type Logger interface {
	Debug(ctx context.Context, msg string, fields ...map[string]interface{})
	Info(ctx context.Context, msg string, fields ...map[string]interface{})
	Warn(ctx context.Context, msg string, fields ...map[string]interface{})
	Error(ctx context.Context, msg string, err error, fields ...map[string]interface{})
	// With returns a child logger that adds fields to every entry.
	With(fields map[string]interface{}) Logger
}
