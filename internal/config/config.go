// Package config layers the spec.md §6 CLI flags over an env/.env overlay
// for secrets, then reads/writes config.cfg for persisted ban/notice/bot
// state. Grounded on the teacher's flag.* usage in main.go for the CLI
// shape, and on adred-codev-ws_poc/ws/config.go's caarlos0/env + godotenv
// struct-tag pattern for the secrets overlay.
package config

import (
	"flag"
	"fmt"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds every flag spec.md §6 names plus the ambient secrets overlay.
type Config struct {
	Desc           string // -n
	ServerPass     string // -y
	AdminPass      string // -p
	PublicServer   int    // -o: 0|1|2
	BotLimit       int    // -g
	UpdateRate     int    // -u
	MaxClients     int    // -c
	BindIP         string // -i
	Port           int    // -j
	MasterHost     string // -m
	HomeDir        string // -q
	PackageDir     string // -k
	InitConfigPath string // -f

	HTTPPort int

	Secrets Secrets
}

// Secrets are values that don't belong on a command line or in config.cfg:
// pulled from the environment (optionally via a .env file), grounded on
// adred-codev-ws_poc/ws/config.go.
type Secrets struct {
	AdminPasswordOverride string `env:"SKIRMISHD_ADMIN_PASSWORD"`
	AuthServiceURL        string `env:"SKIRMISHD_AUTH_URL"`
	WebhookURL             string `env:"SKIRMISHD_WEBHOOK_URL"`
	MasterServerHost       string `env:"SKIRMISHD_MASTER_HOST"`
	IRCServerHost          string `env:"SKIRMISHD_IRC_HOST"`
}

// Parse parses CLI flags (matching spec.md §6's letter flags) and layers the
// env/.env secrets overlay on top. args excludes the program name (as in
// flag.FlagSet.Parse).
func Parse(args []string) (*Config, error) {
	fs := flag.NewFlagSet("skirmishd", flag.ContinueOnError)

	cfg := &Config{}
	fs.StringVar(&cfg.Desc, "n", "", "server description")
	fs.StringVar(&cfg.ServerPass, "y", "", "server password")
	fs.StringVar(&cfg.AdminPass, "p", "", "admin password")
	fs.IntVar(&cfg.PublicServer, "o", 1, "public server mode: 0|1|2")
	fs.IntVar(&cfg.BotLimit, "g", 0, "bot limit")
	fs.IntVar(&cfg.UpdateRate, "u", 33, "worldstate update rate (ms)")
	fs.IntVar(&cfg.MaxClients, "c", 64, "max clients")
	fs.StringVar(&cfg.BindIP, "i", "", "bind IP")
	fs.IntVar(&cfg.Port, "j", 28785, "game port")
	fs.StringVar(&cfg.MasterHost, "m", "", "master server host")
	fs.StringVar(&cfg.HomeDir, "q", ".", "home directory")
	fs.StringVar(&cfg.PackageDir, "k", ".", "package directory")
	fs.StringVar(&cfg.InitConfigPath, "f", "config.cfg", "init config path")
	fs.IntVar(&cfg.HTTPPort, "http", 28786, "HTTP status/control endpoint port")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	_ = godotenv.Load() // optional; absence is not an error

	var secrets Secrets
	if err := env.Parse(&secrets); err != nil {
		return nil, fmt.Errorf("config: parse env secrets: %w", err)
	}
	cfg.Secrets = secrets

	if secrets.AdminPasswordOverride != "" {
		cfg.AdminPass = secrets.AdminPasswordOverride
	}
	if secrets.MasterServerHost != "" {
		cfg.MasterHost = secrets.MasterServerHost
	}

	return cfg, nil
}
