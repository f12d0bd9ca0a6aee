package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/dgellow/atweet/internal"
	"github.com/dgellow/atweet/internal/config"
	"github.com/dgellow/atweet/internal/log"
)

var BuildVersion = "dev"

func generateDefaultConfig(path string) error {
	defaultConfig := map[string]any{
		"version": "v1",
		"site": map[string]any{
			"baseURL": "https://site.example.com",
			"addr":    ":8080",
			"name":    "atweet",
		},
		"twitter": map[string]any{
			"clientId": map[string]string{"$env": "TWITTER_CLIENT_ID"},
			"scopes":   config.DefaultScopes,
			"timeout":  "10s",
		},
		"broker": map[string]any{
			"mainSite": true,
		},
		"storage": map[string]any{
			"kind": "memory",
		},
		"session": map[string]any{
			"secret": map[string]string{"$env": "SESSION_SECRET"},
			"maxAge": "24h",
		},
	}

	data, err := json.MarshalIndent(defaultConfig, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

func validateConfig(path string) error {
	result, err := config.ValidateFile(path)
	if err != nil {
		return fmt.Errorf("error during validation: %w", err)
	}

	fmt.Printf("Validating: %s\n", path)

	if len(result.Errors) > 0 {
		fmt.Printf("\nErrors (%d):\n", len(result.Errors))
		for _, err := range result.Errors {
			if err.Path != "" {
				fmt.Printf("  - %s: %s\n", err.Path, err.Message)
			} else {
				fmt.Printf("  - %s\n", err.Message)
			}
		}
	}

	if len(result.Warnings) > 0 {
		fmt.Printf("\nWarnings (%d):\n", len(result.Warnings))
		for _, warn := range result.Warnings {
			if warn.Path != "" {
				fmt.Printf("  - %s: %s\n", warn.Path, warn.Message)
			} else {
				fmt.Printf("  - %s\n", warn.Message)
			}
		}
	}

	fmt.Println()
	if len(result.Errors) == 0 && len(result.Warnings) == 0 {
		fmt.Println("Result: PASS")
	} else if len(result.Errors) == 0 {
		fmt.Println("Result: PASS (warnings present)")
	} else {
		fmt.Println("Result: FAIL")
	}

	if len(result.Errors) > 0 {
		return fmt.Errorf("validation failed: %d error(s), %d warning(s)", len(result.Errors), len(result.Warnings))
	}
	return nil
}

// runOnce executes one CLI operation against the stored credential and exits
func runOnce(app *internal.ATweet, refresh bool, publish string, reset, internalToken bool) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	defer app.Close()

	switch {
	case reset:
		if err := app.Reset(ctx); err != nil {
			return fmt.Errorf("reset failed: %w", err)
		}
		fmt.Println("All stored options removed")
	case refresh:
		if !app.Refresh(ctx) {
			return fmt.Errorf("refresh failed")
		}
		status, err := app.Status(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("Token refreshed for @%s\n", status.AccountUsername)
	case publish != "":
		result, ok := app.Publish(ctx, publish)
		if !ok {
			return fmt.Errorf("publish failed")
		}
		out, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
	case internalToken:
		token, err := app.InternalToken(ctx)
		if err != nil {
			return err
		}
		if token == "" {
			return fmt.Errorf("no internal token: this site is not the main site")
		}
		fmt.Println(token)
	}
	return nil
}

func main() {
	conf := flag.String("config", "", "path to config file (required)")
	version := flag.Bool("version", false, "print version and exit")
	help := flag.Bool("help", false, "print help and exit")
	configInit := flag.String("config-init", "", "generate default config file at specified path")
	validate := flag.Bool("validate", false, "validate config file and exit")
	refresh := flag.Bool("refresh", false, "refresh the stored access token once and exit")
	publish := flag.String("publish", "", "publish the given text and exit")
	reset := flag.Bool("reset", false, "remove every stored option and exit")
	internalToken := flag.Bool("internal-token", false, "print the token satellites must present and exit (main site only)")
	flag.Parse()
	if *help {
		flag.Usage()
		return
	}
	if *version {
		fmt.Println(BuildVersion)
		return
	}
	if *configInit != "" {
		if err := generateDefaultConfig(*configInit); err != nil {
			log.LogError("Failed to generate config: %v", err)
			os.Exit(1)
		}
		fmt.Printf("Generated default config at: %s\n", *configInit)
		return
	}

	if *validate {
		if *conf == "" {
			fmt.Fprintf(os.Stderr, "Error: -config flag is required for validation\n")
			os.Exit(1)
		}
		if err := validateConfig(*conf); err != nil {
			os.Exit(1)
		}
		return
	}

	if *conf == "" {
		fmt.Fprintf(os.Stderr, "Error: -config flag is required\n")
		fmt.Fprintf(os.Stderr, "Run with -help for usage information\n")
		os.Exit(1)
	}

	cfg, err := config.Load(*conf)
	if err != nil {
		log.LogError("Failed to load config: %v", err)
		os.Exit(1)
	}

	ctx := context.Background()
	app, err := internal.NewATweet(ctx, cfg)
	if err != nil {
		log.LogError("Failed to create application: %v", err)
		os.Exit(1)
	}

	if *refresh || *publish != "" || *reset || *internalToken {
		if err := runOnce(app, *refresh, *publish, *reset, *internalToken); err != nil {
			log.LogError("%v", err)
			os.Exit(1)
		}
		return
	}

	log.LogInfoWithFields("main", "Starting atweet", map[string]any{
		"version": BuildVersion,
		"config":  *conf,
	})

	if err := app.Run(); err != nil {
		log.LogError("Failed to start server: %v", err)
		os.Exit(1)
	}
}
