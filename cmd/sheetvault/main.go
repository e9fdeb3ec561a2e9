package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"sheetvault/internal/app"
	"sheetvault/internal/infrastructure"
)

func main() {
	configPath := flag.String("config", "", "path to the configuration file (defaults to config.yaml)")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s %s (build %s)\n", infrastructure.ServiceName, infrastructure.ServiceVersion, app.BuildID)
		return
	}

	application, err := app.NewApplication(*configPath)
	if err != nil {
		slog.Error("Failed to initialize application", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if err := application.Run(); err != nil {
		slog.Error("Application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
