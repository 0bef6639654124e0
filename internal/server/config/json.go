package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/gophrelay/internal/flagx"
	"github.com/dmitrijs2005/gophrelay/internal/timex"
)

// JsonConfig is the on-disk form of Config. Durations accept strings such
// as "10m" or integer nanoseconds.
type JsonConfig struct {
	ListenAddr             string         `json:"listen_addr"`
	HealthAddrGRPC         string         `json:"health_addr_grpc"`
	DatabaseDSN            string         `json:"database_dsn"`
	StoreKind              string         `json:"store"`
	SecretKey              string         `json:"secret_key"`
	TicketValidityDuration timex.Duration `json:"ticket_validity_duration"`
	UnauthenticatedTimeout timex.Duration `json:"unauthenticated_timeout"`
	WriteTimeout           timex.Duration `json:"write_timeout"`
	MaxFrameBytes          int64          `json:"max_frame_bytes"`
	PasswordIterations     int            `json:"password_iterations"`
	DuplicateSessionPolicy string         `json:"duplicate_session_policy"`
}

// parseJson overlays Config with the values set in the JSON file named by
// -c or -config. Keys that are absent keep their current value. It panics
// if the file cannot be read or parsed.
func parseJson(config *Config) {
	jsonConfigFile := flagx.ConfigPath(os.Args[1:])
	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}
	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	setString(&config.ListenAddr, c.ListenAddr)
	setString(&config.HealthAddrGRPC, c.HealthAddrGRPC)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.StoreKind, c.StoreKind)
	setString(&config.SecretKey, c.SecretKey)
	setString(&config.DuplicateSessionPolicy, c.DuplicateSessionPolicy)

	if c.TicketValidityDuration.Duration != 0 {
		config.TicketValidityDuration = c.TicketValidityDuration.Duration
	}
	if c.UnauthenticatedTimeout.Duration != 0 {
		config.UnauthenticatedTimeout = c.UnauthenticatedTimeout.Duration
	}
	if c.WriteTimeout.Duration != 0 {
		config.WriteTimeout = c.WriteTimeout.Duration
	}
	if c.MaxFrameBytes != 0 {
		config.MaxFrameBytes = c.MaxFrameBytes
	}
	if c.PasswordIterations != 0 {
		config.PasswordIterations = c.PasswordIterations
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
