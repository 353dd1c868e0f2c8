package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/rs/zerolog/log"

	"github.com/patrikhermansson/cbir/cmd"
)

// main wires interrupt handling and runs the command line. Logging is configured
// from CBIR_LOG when the core package initializes.
func main() {
	ctx, cancel := context.WithCancel(context.Background())
	stopChan := make(chan os.Signal, 1)
	signal.Notify(stopChan, os.Interrupt)
	go listenForInterrupt(stopChan, cancel)

	code := cmd.Execute(ctx, os.Args[1:])
	cancel()
	os.Exit(code)
}

// listenForInterrupt cancels the running command on the first interrupt and
// exits on the second.
func listenForInterrupt(stopChan chan os.Signal, cancel context.CancelFunc) {
	<-stopChan
	log.Warn().Msg("Interrupt signal received, finishing current work. Interrupt again to exit.")
	cancel()
	<-stopChan
	log.Fatal().Msg("Interrupt signal received. Exiting...")
}
