// Command smuemu runs the instrument emulator as a daemon, exposing it on a
// raw TCP socket for controllers that speak the same line protocol as the
// real hardware's LAN port.
package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/instrument-control/smuctl/internal/config"
	"github.com/instrument-control/smuctl/internal/emulator"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("starting source-measure instrument emulator")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	emu := emulator.New(cfg.Emulator.Identity)
	server, err := emulator.NewServer(emu, cfg.Emulator.Listen, emulator.ServerOptions{
		AllowedCIDRs:   cfg.Emulator.AllowedCIDRs,
		MaxConnections: cfg.Emulator.MaxConnections,
		IdleTimeout:    cfg.Emulator.IdleTimeout(),
	})
	if err != nil {
		log.Fatalf("failed to create emulator server: %v", err)
	}

	go func() {
		if err := server.ListenAndServe(); err != nil {
			log.Fatalf("emulator server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("shutting down emulator")
	if err := server.Close(); err != nil {
		log.Printf("emulator shutdown error: %v", err)
	}
	log.Println("emulator stopped")
}
