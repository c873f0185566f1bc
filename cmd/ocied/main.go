// Command ocied serves the OCI container engine's REST API.
package main

import (
	"fmt"
	"net/http"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/drachenfels-de/ocie/internal/log"
	"github.com/drachenfels-de/ocie/internal/registry"
	"github.com/drachenfels-de/ocie/internal/restapi"
)

func main() {
	app := &cli.App{
		Name:  "ocied",
		Usage: "a lightweight OCI container engine",
		Flags: []cli.Flag{
			&cli.UintFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Value:   8080,
				EnvVars: []string{"OCIE_PORT"},
				Usage:   "TCP port to bind the REST API on 127.0.0.1",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Value: "info",
				Usage: "log level: trace, debug, info, warn, error",
			},
			&cli.BoolFlag{
				Name:  "log-pretty",
				Usage: "write human-readable console logs instead of JSON",
			},
			&cli.StringFlag{
				Name:  "skopeo-bin",
				Value: "skopeo",
				Usage: "path to the skopeo binary",
			},
			&cli.StringFlag{
				Name:  "umoci-bin",
				Value: "umoci",
				Usage: "path to the umoci binary",
			},
			&cli.StringFlag{
				Name:  "runtime-bin",
				Value: "/usr/bin/crun",
				Usage: "path to the low-level OCI runtime binary",
			},
			&cli.StringFlag{
				Name:  "conmon-bin",
				Value: "conmon",
				Usage: "path to the monitor process binary",
			},
			&cli.BoolFlag{
				Name:  "systemd-cgroup",
				Usage: "tell the monitor to use the systemd cgroup manager",
			},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	logger := log.New(c.Bool("log-pretty"), c.String("log-level"))

	reg := registry.New(registry.Config{
		SkopeoBin:     c.String("skopeo-bin"),
		UmociBin:      c.String("umoci-bin"),
		RuntimeBin:    c.String("runtime-bin"),
		ConmonBin:     c.String("conmon-bin"),
		SystemdCgroup: c.Bool("systemd-cgroup"),
		Log:           logger,
	})

	router := restapi.New(reg, logger)

	addr := fmt.Sprintf("127.0.0.1:%d", c.Uint("port"))
	logger.Info().Str("addr", addr).Msg("serving container engine")
	return http.ListenAndServe(addr, router)
}
