package main

import (
	"log"
	"os"

	"go.uber.org/zap"

	"squirrelctl/cmd"
	"squirrelctl/config"
	"squirrelctl/internal/logging"
	"squirrelctl/internal/metrics"
)

func main() {
	cnf, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration %v", err)
	}
	if err := logging.Init(logging.Config{Level: cnf.LogLevel, Format: cnf.LogFormat}); err != nil {
		log.Fatalf("Failed to initialize logger %v", err)
	}
	if cnf.EnvFileMissing {
		logging.L().Debug("no .env file found, using environment variables")
	}

	err = cmd.Execute(cnf)
	if mErr := metrics.WriteTextfile(cnf.MetricsFile); mErr != nil {
		logging.L().Warn("metrics not written", zap.Error(mErr))
	}
	_ = logging.Sync()
	if err != nil {
		os.Exit(1)
	}
}
