package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Tyrowin/wsecho/internal/client"
)

func main() {
	url := flag.String("url", "ws://localhost:8080", "server to send -message to")
	message := flag.String("message", "", "send one message and print the replies instead of starting the shell")
	wait := flag.Duration("wait", 2*time.Second, "how long to wait for replies in one-shot mode")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *message != "" {
		if err := sendOnce(ctx, *url, *message, *wait); err != nil {
			log.Printf("wsclient: %v", err)
			stop()
			os.Exit(1)
		}
		return
	}

	shell := client.NewShell(client.NewEndpoint(), os.Stdout)
	if err := shell.Run(ctx, os.Stdin); err != nil {
		log.Printf("wsclient: %v", err)
		stop()
		os.Exit(1)
	}
}

// sendOnce connects, sends message, prints every frame received until wait
// elapses and closes the connection normally.
func sendOnce(ctx context.Context, url, message string, wait time.Duration) error {
	endpoint := client.NewEndpoint(client.WithMessageHandler(func(_ int, msg string) {
		fmt.Printf("Received: %s\n", msg)
	}))

	id, err := endpoint.Connect(ctx, url)
	if err != nil {
		return err
	}
	fmt.Println("Connection opened")

	if err := endpoint.Send(id, message); err != nil {
		return err
	}

	select {
	case <-time.After(wait):
	case <-ctx.Done():
	}

	endpoint.Shutdown()
	fmt.Println("Connection closed")
	return nil
}
