package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/maclap/cashtrack/internal/config"
	"github.com/maclap/cashtrack/internal/daemon"
	"github.com/maclap/cashtrack/internal/profile"
	"go.uber.org/fx"
)

func main() {
	profileFlag := flag.String("profile", "", "profile name (overrides config default)")
	flag.Parse()

	// A .env in the working directory wins over the one in the base dir;
	// neither overrides variables already set in the environment.
	_ = godotenv.Load()
	_ = godotenv.Load(profile.EnvPath())

	cfg, err := config.LoadOrDefault(profile.ConfigPath())
	if err != nil {
		fatalf("load config: %v", err)
	}
	if err := config.ApplyEnv(cfg); err != nil {
		fatalf("environment: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		fatalf("invalid config: %v", err)
	}

	profileName := profile.Resolve(*profileFlag, cfg)
	if err := profile.ValidateName(profileName); err != nil {
		fatalf("%v", err)
	}

	app := fx.New(
		daemon.Module(daemon.Params{Profile: profileName, Config: cfg}),
	)

	app.Run()
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
	os.Exit(1)
}
