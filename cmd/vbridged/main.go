// Command vbridged serves IPMI and Redfish BMC endpoints for VMware VMs.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/vbridge/vbridge/internal/buildinfo"
	"github.com/vbridge/vbridge/internal/config"
	"github.com/vbridge/vbridge/internal/daemon"
	"github.com/vbridge/vbridge/internal/logging"
)

const (
	exitOK            = 0
	exitConfigInvalid = 1
	exitBindFailed    = 2
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("vbridged", flag.ContinueOnError)
	var (
		showVersion bool
		configPath  string
		logLevel    string
		logJSON     bool
	)
	fs.BoolVar(&showVersion, "version", false, "print version and exit")
	fs.StringVar(&configPath, "config", "/etc/vbridge/config.json", "path to config file")
	fs.StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	fs.BoolVar(&logJSON, "log-json", false, "emit JSON log lines")
	if err := fs.Parse(args); err != nil {
		return exitConfigInvalid
	}

	if showVersion {
		fmt.Println(buildinfo.String())
		return exitOK
	}

	log := logging.New(logging.Options{Level: logLevel, JSON: logJSON})

	cfg, err := config.Load(configPath)
	if err != nil {
		log.WithError(err).Error("configuration rejected")
		return exitConfigInvalid
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := daemon.Run(ctx, cfg, log); err != nil {
		if errors.Is(err, daemon.ErrBind) {
			log.WithError(err).Error("cannot bind required port")
			return exitBindFailed
		}
		log.WithError(err).Error("daemon exited with error")
		return exitConfigInvalid
	}
	return exitOK
}
