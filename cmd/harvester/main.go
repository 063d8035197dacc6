package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jgivc/harvester/internal/app"
	"github.com/joho/godotenv"
)

func main() {
	cfgFileName := flag.String("c", "config.yml", "Path to config file")
	runOnStart := flag.Bool("run", false, "Run a harvest immediately on startup")
	flag.Parse()

	// Optional .env for deployment overrides, missing file is fine.
	godotenv.Load()

	app := app.New(*cfgFileName)
	app.Start()

	if *runOnStart {
		go app.RunNow()
	}

	c := make(chan os.Signal, 1)
	defer close(c)
	done := make(chan struct{})

	signal.Notify(c, os.Interrupt, syscall.SIGINT, syscall.SIGTERM, syscall.SIGUSR1, syscall.SIGUSR2)
	go func() {
		defer close(done)

		for sig := range c {
			switch sig {
			case syscall.SIGUSR1:
				go app.RunNow()
			case syscall.SIGUSR2:
				go app.Verify()
			case syscall.SIGTERM, syscall.SIGINT:
				fmt.Println("Received termination signal. Shutting down...")
				done <- struct{}{}

				return
			}
		}
	}()

	<-done
	app.Stop()
	time.Sleep(2 * time.Second)
	fmt.Println("done")
}
