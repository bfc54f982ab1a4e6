// Package process starts user commands as detached child processes.
//
// Commands run through the shell in their own process group, so a
// terminal signal to alpwatch does not reach them and they are not tied
// to the event that triggered them. Each child is reaped on a background
// goroutine; its output is logged at debug level.
//
// Example usage:
//
//	launcher := process.NewLauncher(process.Config{
//	    OnExit: func(e process.ExitInfo) { ... },
//	})
//	launcher.SetLogger(logger)
//
//	if err := launcher.Launch(ctx, "/usr/local/bin/notify.sh slew"); err != nil {
//	    logger.Error("launch failed", "error", err)
//	}
package process
