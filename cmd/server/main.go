package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/Tyrowin/wsecho/internal/server"
)

func main() {
	log.SetOutput(os.Stdout)

	config := server.NewConfigFromEnv()
	srv := server.New(config)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := srv.ListenAndServe(ctx); err != nil {
		log.Printf("Server error: %v", err)
		stop()
		os.Exit(1)
	}
}
