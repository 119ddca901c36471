package main

import (
	"fmt"
	"os"

	"github.com/bdobrica/Sagasu/common/environment"
	"github.com/bdobrica/Sagasu/common/version"
	"github.com/bdobrica/Sagasu/internal/sagasu/app"
	"github.com/bdobrica/Sagasu/internal/sagasu/matrix"
	"github.com/bdobrica/Sagasu/internal/sagasu/observability"
	"github.com/bdobrica/Sagasu/internal/sagasu/sonar"
)

func main() {
	fmt.Printf("Sagasu Inventory Assistant %s\n\n", version.Info())

	observability.Setup(
		environment.StringOr("LOG_LEVEL", "info"),
		environment.StringOr("LOG_FORMAT", "text"),
	)

	// Load configuration from environment
	config, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	// Create application
	sagasu, err := app.New(config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize Sagasu: %v\n", err)
		os.Exit(1)
	}
	defer sagasu.Stop()

	// Run application
	if err := sagasu.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error running Sagasu: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig loads configuration from environment variables
func loadConfig() (*app.Config, error) {
	homeserver, err := environment.RequiredString("MATRIX_HOMESERVER")
	if err != nil {
		return nil, err
	}
	userID, err := environment.RequiredString("MATRIX_USER_ID")
	if err != nil {
		return nil, err
	}
	accessToken, err := environment.RequiredString("MATRIX_ACCESS_TOKEN")
	if err != nil {
		return nil, err
	}
	adminRooms := environment.StringSliceOr("MATRIX_ADMIN_ROOMS", nil)
	if len(adminRooms) == 0 {
		return nil, fmt.Errorf("required environment variable %q is not set", "MATRIX_ADMIN_ROOMS")
	}

	subdomain, err := environment.RequiredString("AS_SUBDOMAIN")
	if err != nil {
		return nil, err
	}
	secretKey, err := environment.RequiredString("AS_SECRET_KEY")
	if err != nil {
		return nil, err
	}

	return &app.Config{
		DatabasePath: environment.StringOr("DATABASE_PATH", "./sagasu.db"),
		Matrix: matrix.Config{
			Homeserver:  homeserver,
			UserID:      userID,
			AccessToken: accessToken,
			AdminRooms:  adminRooms,
		},
		Sonar: sonar.Config{
			Subdomain: subdomain,
			Token:     secretKey,
		},
		HTTPAddr:     environment.StringOr("HTTP_ADDR", ""),
		KeywordsPath: environment.StringOr("KEYWORDS_PATH", ""),
		DirectoryTTL: environment.DurationOr("DIRECTORY_TTL", 0),
		MaxPages:     environment.IntOr("MAX_PAGES", 0),
		NLPAPIKey:    environment.StringOr("SAGASU_NLP_API_KEY", ""),
		NLPModel:     environment.StringOr("NLP_MODEL", ""),
		NLPEndpoint:  environment.StringOr("NLP_ENDPOINT", ""),
	}, nil
}
