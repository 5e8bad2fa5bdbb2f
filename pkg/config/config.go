// Package config loads vendor credentials from the environment, optionally
// seeded from a .env file.
package config

import (
	"log/slog"
	"os"

	"github.com/joho/godotenv"
)

// Credentials holds every vendor secret the service can use. Any of them may
// be empty; a provider without credentials reports itself unconfigured
// instead of failing startup.
type Credentials struct {
	SmartThingsClientID     string
	SmartThingsClientSecret string

	HomeConnectClientID     string
	HomeConnectClientSecret string

	BoschControllerIP string
	BoschAPIKey       string
	BoschIoTHubURL    string

	SolarmanEmail     string
	SolarmanPassword  string
	SolarmanAppID     string
	SolarmanAppSecret string
}

// Load reads credentials from the environment. A .env file in the working
// directory is loaded first if present; real environment variables win over
// .env values.
func Load() Credentials {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file loaded", slog.Any("error", err))
	}

	return Credentials{
		SmartThingsClientID:     os.Getenv("SMARTTHINGS_CLIENT_ID"),
		SmartThingsClientSecret: os.Getenv("SMARTTHINGS_CLIENT_SECRET"),

		HomeConnectClientID:     os.Getenv("HOMECONNECT_CLIENT_ID"),
		HomeConnectClientSecret: os.Getenv("HOMECONNECT_CLIENT_SECRET"),

		BoschControllerIP: os.Getenv("BOSCH_CONTROLLER_IP"),
		BoschAPIKey:       os.Getenv("BOSCH_API_KEY"),
		BoschIoTHubURL:    os.Getenv("BOSCH_IOT_HUB_URL"),

		SolarmanEmail:     os.Getenv("SOLARMAN_EMAIL"),
		SolarmanPassword:  os.Getenv("SOLARMAN_PASSWORD"),
		SolarmanAppID:     os.Getenv("SOLARMAN_APP_ID"),
		SolarmanAppSecret: os.Getenv("SOLARMAN_APP_SECRET"),
	}
}
