package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"ai-workspace-editor/internal/pkg/logger"
	"ai-workspace-editor/pkg/devserver"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
)

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

// parseUsers reads "email:password,email:password".
func parseUsers(raw string) map[string]string {
	users := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		email, password, ok := strings.Cut(strings.TrimSpace(pair), ":")
		if ok && email != "" {
			users[email] = password
		}
	}
	return users
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: .env file not found, usage system environment")
	}

	addr := getEnv("DEVSERVER_ADDR", "localhost:8000")
	chunkDelay, err := time.ParseDuration(getEnv("DEVSERVER_CHUNK_DELAY", "40ms"))
	if err != nil {
		log.Fatalf("[FATAL] invalid DEVSERVER_CHUNK_DELAY: %v", err)
	}

	sysLogger := logger.NewZapLogger(getEnv("LOG_FILE_PATH", "logs/devserver.log"), false)
	defer sysLogger.Close()

	srv, err := devserver.New(devserver.Config{
		Secret:     getEnv("DEVSERVER_SECRET", "dev-secret"),
		APIPath:    getEnv("BACKEND_API_PATH", ""),
		Users:      parseUsers(getEnv("DEVSERVER_USERS", "dev@example.com:password123")),
		ChunkDelay: chunkDelay,
	}, sysLogger)
	if err != nil {
		log.Fatalf("[FATAL] %v", err)
	}

	bound, err := srv.Start(addr)
	if err != nil {
		log.Fatalf("[FATAL] %v", err)
	}
	color.Green("✅ Dev backend is running on http://%s", bound)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown: %v", err)
	}
}
