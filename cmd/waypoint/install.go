package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
)

// runInstall writes the effective configuration, with flag overrides, to
// settings.json.
func runInstall(args []string) {
	cfg := loadConfig()
	fs := flag.NewFlagSet("install", flag.ExitOnError)
	cfg.registerFlags(fs)
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	if err := writeSettings(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Config written to %s\n", settingsPath())
}

func writeSettings(cfg Config) error {
	dir := waypointDir()
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("cannot create %s: %w", dir, err)
	}
	data, err := json.MarshalIndent(cfg.settings(), "", "  ")
	if err != nil {
		return err
	}
	path := settingsPath()
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("cannot write %s: %w", path, err)
	}
	return nil
}
