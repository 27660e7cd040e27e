package main

import (
	"log"
	"os"

	"github.com/sentra-ai/diagnosis-proxy/internal/config"
	pkgconfig "github.com/sentra-ai/diagnosis-proxy/pkg/config"

	fiberlog "github.com/gofiber/fiber/v2/log"
)

func main() {
	envFiles := []string{".env.local", ".env.development", ".env"}
	config.LoadEnvFiles(envFiles)

	configPath := "config.yaml"
	if p := os.Getenv("SENTRA_CONFIG"); p != "" {
		configPath = p
	}

	cfg, err := config.LoadFromFile(configPath)
	if err != nil {
		fiberlog.Fatalf("Failed to load config: %v", err)
	}

	proxy := pkgconfig.NewProxy(cfg)

	log.Println("Starting Sentra diagnosis proxy...")
	if err := proxy.Run(); err != nil {
		fiberlog.Fatalf("Server failed: %v", err)
	}
}
