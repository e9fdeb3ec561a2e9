// Package app provides application initialization and lifecycle management
// for the sheetvault service. It wires the configuration, logging,
// telemetry, pipeline and HTTP layers together at startup and owns their
// graceful shutdown.
//
// # Initialization Flow
//
// The typical initialization sequence:
//
//	1. Load configuration from file and environment
//	2. Initialize logging and OpenTelemetry
//	3. Resolve the Paillier key pair (sealed store or ephemeral)
//	4. Build the watcher, stages, runner and websocket hub
//	5. Set up HTTP handlers and middleware
//	6. Configure and start the HTTP server
//	7. Set up graceful shutdown handlers
//
// # Usage
//
// The main entry point is typically:
//
//	app, err := app.NewApplication(configPath)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := app.Run(); err != nil {
//	    log.Fatal(err)
//	}
//
// # Graceful Shutdown
//
// The package handles SIGINT and SIGTERM signals to ensure:
//
//	- Active requests are completed
//	- The file in flight finishes or is abandoned with the run context
//	- WebSocket connections are closed cleanly
//	- Final metrics are flushed
//
// # Error Handling
//
// All initialization errors are returned to the caller for proper
// handling. The app does not call os.Exit() directly, allowing
// the main function to control the exit process.
package app
