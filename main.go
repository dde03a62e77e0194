package main

import (
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/cors"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf(".env file not found, using defaults: %v", err)
	}

	cfg := LoadConfig()

	// Initialize database
	db, err := NewDatabase(cfg.DBPath)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		log.Fatal("Failed to migrate database:", err)
	}

	// Re-seed the fixed user set, everyone offline, on every startup
	if err := db.ResetUsers(cfg.SeedUsers, StatusOffline); err != nil {
		log.Fatal("Failed to seed users:", err)
	}

	stager, err := NewAttachmentStager(cfg.UploadDir)
	if err != nil {
		log.Fatal("Failed to prepare upload directory:", err)
	}

	// Initialize server
	server := NewServer(db, stager)

	// Setup routes
	router := server.RegisterRoutes()

	c := cors.New(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
	})
	handler := c.Handler(router)

	// Close the store cleanly on Ctrl-C
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigs
		db.Close()
		os.Exit(0)
	}()

	log.Println("Chat server starting on :" + cfg.Port)
	log.Println("WebSocket endpoint: ws://localhost:" + cfg.Port + "/ws")
	log.Println("API endpoints: http://localhost:" + cfg.Port + "/api/*")
	log.Printf("Seeded users: %v", cfg.SeedUsers)

	if err := http.ListenAndServe(":"+cfg.Port, handler); err != nil {
		log.Fatal("Server failed:", err)
	}
}
