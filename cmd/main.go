// Command po-ingest-engine runs the workflow orchestration engine: an
// HTTP process exposing the inbound seams spec.md §6 names, a worker
// process draining the queue substrate and running the cron reconcile
// driver, or both in one container, gated by RUN_SERVER/RUN_WORKER.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/northboundcommerce/po-ingest-engine/internal/app"
)

func envTrue(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return strings.EqualFold(v, "true") || v == "1" || strings.EqualFold(v, "yes")
}

func main() {
	a, err := app.New()
	if err != nil {
		fmt.Printf("Failed to initialize app: %v\n", err)
		os.Exit(1)
	}
	defer a.Close()

	runServer := envTrue("RUN_SERVER", true)
	runWorker := envTrue("RUN_WORKER", false)

	a.Start(runServer, runWorker)

	if runServer {
		fmt.Printf("Server listening on :%s\n", a.Cfg.Port)
		if err := a.Run(":" + a.Cfg.Port); err != nil {
			a.Log.Warn("Server failed", "error", err)
		}
		return
	}

	// Worker-only container: keep process alive.
	select {}
}
