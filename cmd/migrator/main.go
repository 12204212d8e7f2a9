package main

import (
	"flag"
	"log"
	"os"
	"path"

	"github.com/onemorebsmith/coinduel/src/common"
	"github.com/onemorebsmith/coinduel/src/postgres"
)

func main() {
	pwd, _ := os.Getwd()
	cfg := common.CommonConfig{}
	if err := common.LoadConfig(path.Join(pwd, "config.yaml"), &cfg); err != nil {
		log.Printf("%s", err)
		os.Exit(1)
	}
	flag.StringVar(&cfg.PostgresConfig, "pg", cfg.PostgresConfig, `config string for the postgres connection"`)
	flag.Parse()

	if cfg.PostgresConfig == "" {
		log.Printf("no postgres connection configured, pass -pg or set `postgres` in config.yaml")
		os.Exit(1)
	}
	log.Println("----------------------------------")
	log.Printf("applying journal migrations")
	log.Println("----------------------------------")
	if err := postgres.Migrate(cfg.PostgresConfig); err != nil {
		log.Printf("migration failed: %s", err)
		os.Exit(1)
	}
	log.Printf("journal schema is up to date")
}
