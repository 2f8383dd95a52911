package main

import (
	"log"
	"os"

	"github.com/joho/godotenv"

	"invoicechat/cmd"
	"invoicechat/internal/config"
	"invoicechat/internal/logger"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("Warning: Could not load .env file: %v", err)
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Printf("Warning: Could not load configuration: %v", err)
		if err := logger.Setup(logger.DefaultConfig()); err != nil {
			log.Fatalf("Failed to initialize logger: %v", err)
		}
	} else {
		if err := logger.Setup(cfg.GetLoggerConfig()); err != nil {
			log.Fatalf("Failed to initialize logger: %v", err)
		}
		cmd.SetConfig(cfg)
	}

	log := logger.WithComponent("main")
	log.Debug().Msg("Starting invoicechat")

	cmd.Execute()

	log.Debug().Msg("invoicechat shutdown")
	os.Exit(0)
}
