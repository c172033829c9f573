package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	cli "github.com/urfave/cli/v2"
	bolt "go.etcd.io/bbolt"

	"lynx-alpaca/pkg/alpaca"
	"lynx-alpaca/pkg/drivers/focuslynx"
	"lynx-alpaca/templates"
)

const version = "1.0"

func run(c *cli.Context) error {
	if c.Bool("debug") {
		log.SetLevel(log.DebugLevel)
	}

	log.Infof("FocusLynx Alpaca Server %s", version)

	tmpl, err := templates.LoadTemplates()
	if err != nil {
		return fmt.Errorf("failed to load templates: %v", err)
	}

	db, err := bolt.Open(c.String("db"), 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return fmt.Errorf("failed to open database: %v", err)
	}
	defer db.Close()

	store, err := alpaca.NewStore(db)
	if err != nil {
		return fmt.Errorf("failed to create store: %v", err)
	}

	pool := focuslynx.NewHubPool(focuslynx.DefaultOpener, log.WithField("component", "hub"))

	var devices []alpaca.Device
	for i := 0; i < c.Int("focusers"); i++ {
		drv, err := focuslynx.NewDriver(i, db, pool, tmpl, log.WithField("device", i))
		if err != nil {
			return fmt.Errorf("failed to create focuser %d: %v", i, err)
		}
		defer drv.Close()
		devices = append(devices, drv)
	}

	serverDesc := alpaca.ServerDescription{
		Manufacturer:        "FocusLynx Alpaca",
		ManufacturerVersion: version,
	}
	server := alpaca.NewServer(serverDesc, devices, store, tmpl)

	mux := server.AddRoutes()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", c.Int("port")),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Debugf("Server started on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorf("Could not listen on %s: %v", srv.Addr, err)
			stop()
		}
	}()

	cfg, err := store.GetConfig()
	if err != nil {
		return fmt.Errorf("failed to read server config: %v", err)
	}
	if cfg.DiscoveryEnabled {
		discoveryLogger := log.WithField("component", "discovery")
		dr, err := alpaca.NewDiscoveryResponder("0.0.0.0", c.Int("discovery-port"), c.Int("port"), discoveryLogger)
		if err != nil {
			log.Errorf("Failed to start discovery responder: %v", err)
		} else {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := dr.Run(ctx); err != nil {
					log.Errorf("Discovery responder failed: %v", err)
				}
				log.Debug("Discovery responder stopped")
			}()
		}
	}

	<-ctx.Done()

	log.Info("Shutting down server...")

	ctx2, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx2); err != nil {
		return fmt.Errorf("server forced to shutdown: %v", err)
	}

	wg.Wait()
	log.Info("Server stopped")
	return nil
}

func main() {
	app := cli.App{
		Name:    "lynx-alpaca",
		Usage:   "ASCOM Alpaca server for Optec FocusLynx focusers",
		Version: version,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "debug",
				Aliases: []string{"d"},
				Usage:   "Enable debug logging",
				Value:   false,
				EnvVars: []string{"DEBUG"},
			},
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to listen on",
				Value:   11111,
				EnvVars: []string{"ALPACA_PORT"},
			},
			&cli.IntFlag{
				Name:    "discovery-port",
				Usage:   "UDP port of the discovery responder",
				Value:   alpaca.DiscoveryPort,
				EnvVars: []string{"ALPACA_DISCOVERY_PORT"},
			},
			&cli.StringFlag{
				Name:    "db",
				Usage:   "Settings database file",
				Value:   "lynx-alpaca.db",
				EnvVars: []string{"LYNX_ALPACA_DB"},
			},
			&cli.IntFlag{
				Name:    "focusers",
				Usage:   "Number of focuser devices to serve (F1, F2, F1, ...)",
				Value:   2,
				EnvVars: []string{"LYNX_FOCUSERS"},
			},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("Error: %v", err)
	}
}
