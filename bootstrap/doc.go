// Package bootstrap wires configuration, storage, the session hub, mail and the admin
// services into a runnable application.
//
// Usage:
//
//	app, err := bootstrap.NewApp(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer app.Shutdown()
//
//	if err := app.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
//	// Wait for shutdown signal
//	app.WaitForShutdown()
//
// Command line tools that only need the services use NewAppWithConfig and Close
// without starting the HTTP server.
package bootstrap
