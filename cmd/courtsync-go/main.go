package main

import (
	"log"

	"github.com/kadunajudiciary/courtsync-go/internal/application/startup"
)

func main() {
	if err := startup.Initialize(); err != nil {
		log.Fatalf("Startup failed: %v", err)
	}

	log.Println("Engine has shut down gracefully.")
}
