package main

import (
	"context"
	"log/slog"
	"time"

	"comebackwatch/cmd/comebackwatch/commands"
	"comebackwatch/lib/serviceutil"
	"comebackwatch/lib/telemetry"
)

func main() {
	ctx := serviceutil.SignalContext()

	otel, err := telemetry.SetupFromEnv(ctx, "comebackwatch")
	if err != nil {
		serviceutil.Fatal("failed to setup telemetry", err)
	}

	code := commands.ExecuteContext(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err = otel.Shutdown(shutdownCtx)
	if err != nil {
		slog.Warn("failed to flush telemetry", "err", err)
	}
	commands.Exit(code)
}
