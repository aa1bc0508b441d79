// Command iastsim drives the IAST telemetry pipeline with a simulated workload.
package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"
)

// CLI is the iastsim command line.
var CLI struct {
	ConfigDir string `short:"c" help:"Directory holding telemetry.yaml, logger.yaml, plugin.yaml and reporter.yaml." default:"configs" type:"path"`
	Env       string `help:"Configuration environment subdirectory." default:"development" env:"IAST_ENV"`
	EnvFile   string `help:"Dotenv file loaded before configuration." default:".env"`
	Consul    string `help:"Consul agent address. When set, telemetry.yaml is read from the KV store." env:"CONSUL_HTTP_ADDR"`
	Prefix    string `help:"Consul KV prefix." default:"iast"`

	Simulate SimulateCmd `cmd:"" default:"withargs" help:"Run a simulated request workload and report its telemetry."`
	Catalog  CatalogCmd  `cmd:"" help:"List the telemetry metric catalog."`
}

// SimulateCmd runs the workload.
type SimulateCmd struct {
	Requests     int           `short:"n" help:"Number of simulated requests." default:"200"`
	Concurrency  int           `short:"p" help:"Concurrent requests." default:"8"`
	TaintedRatio float64       `help:"Share of requests carrying an injection payload." default:"0.25"`
	Listen       string        `help:"Serve Prometheus metrics on this address, e.g. :9464."`
	Linger       time.Duration `help:"Keep serving metrics after the workload." default:"0s"`
	Format       string        `help:"Codec used to print the final drain: json, yaml, proto (binary), default (the reporter codec) or none." default:"none" enum:"json,yaml,proto,default,none"`
}

// CatalogCmd prints the metric catalog.
type CatalogCmd struct{}

func main() {
	ctx := kong.Parse(&CLI,
		kong.Name("iastsim"),
		kong.Description("Simulated IAST telemetry workload."),
		kong.UsageOnError(),
	)

	if err := loadEnvFile(CLI.EnvFile); err != nil {
		fmt.Fprintf(os.Stderr, "load %s: %v\n", CLI.EnvFile, err)
		os.Exit(1)
	}

	ctx.FatalIfErrorf(ctx.Run())
}

func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	err := godotenv.Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}
