package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"road-severity/config"

	"github.com/joho/godotenv"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Expected 'serve' subcommand")
		os.Exit(1)
	}
	_ = godotenv.Load()
	cfg := config.Load()

	switch os.Args[1] {
	case "serve":
		serveCmd := flag.NewFlagSet("serve", flag.ExitOnError)
		protocol := serveCmd.String("proto", "http", "Protocol to use (http or https)")
		port := serveCmd.String("p", cfg.Server.Port, "Port to use")
		modelDir := serveCmd.String("model", cfg.Model.Dir, "Directory holding the trained artifacts")
		serveCmd.Parse(os.Args[2:])

		cfg.Model.Dir = *modelDir
		log.Printf("Log level %s, store %s\n", cfg.LogLevel, cfg.Store.Type)
		serve(cfg, *protocol, *port)
	default:
		fmt.Println("Expected 'serve' subcommand")
		os.Exit(1)
	}
}
