package main

import (
	"fmt"
	"log"
	"os"

	"github.com/ironsheep/gcp-tools-mcp/internal/config"
	"github.com/ironsheep/gcp-tools-mcp/internal/server"
)

// Version information - set by ldflags during build
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	// Handle --version and -v flags
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "--version", "-v", "version":
			fmt.Printf("gcp-tools-mcp %s\n", Version)
			fmt.Printf("  Build time: %s\n", BuildTime)
			fmt.Printf("  Git commit: %s\n", GitCommit)
			return
		case "--help", "-h", "help":
			fmt.Println("gcp-tools-mcp - MCP server for ground control point detection")
			fmt.Println()
			fmt.Println("Usage: gcp-tools-mcp [options]")
			fmt.Println()
			fmt.Println("Options:")
			fmt.Println("  --version, -v    Print version information")
			fmt.Println("  --help, -h       Print this help message")
			fmt.Println()
			fmt.Println("Environment variables:")
			fmt.Println("  GCP_MCP_CONFIG=/path/gcp.json  Load settings from a JSON file")
			fmt.Println("  GCP_MCP_LOG_LEVEL=debug        Enable debug logging")
			fmt.Println("  GCP_MCP_WORKERS=4              Photos processed concurrently")
			fmt.Println("  GCP_MCP_DETECT_TIMEOUT=60s     Time limit per photo")
			fmt.Println()
			fmt.Println("This server communicates via MCP protocol over stdin/stdout.")
			fmt.Println("Configure it in your MCP client.")
			return
		}
	}

	// Configure logging to stderr (stdout is for MCP protocol)
	log.SetOutput(os.Stderr)
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)

	cfg, err := config.Load(os.Getenv("GCP_MCP_CONFIG"))
	if err != nil {
		log.Fatalf("Configuration error: %v", err)
	}
	if cfg.Debug {
		log.Printf("GCP MCP Server v%s (built %s, commit %s)", Version, BuildTime, GitCommit)
	}

	srv := server.New(cfg)
	if err := srv.Run(); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}
