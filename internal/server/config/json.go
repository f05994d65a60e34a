package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/lostfound/internal/flagx"
	"github.com/dmitrijs2005/lostfound/internal/timex"
)

// JsonConfig is the on-disk shape of the optional configuration file.
// Durations accept both strings such as "1h" and integer nanoseconds.
// Zero values mean "not set" and leave the current value in place.
type JsonConfig struct {
	EndpointAddrHTTP            string         `json:"endpoint_addr_http"`
	EndpointAddrGRPC            string         `json:"endpoint_addr_grpc"`
	DatabaseDSN                 string         `json:"database_dsn"`
	Environment                 string         `json:"environment"`
	SecretKey                   string         `json:"secret_key"`
	AccessTokenValidityDuration timex.Duration `json:"access_token_validity_duration"`
	PasswordHashTime            uint32         `json:"password_hash_time"`
	PasswordHashMemoryKiB       uint32         `json:"password_hash_memory_kib"`
	PasswordHashConcurrency     int            `json:"password_hash_concurrency"`
	S3RootUser                  string         `json:"s3_root_user"`
	S3RootPassword              string         `json:"s3_root_password"`
	S3Bucket                    string         `json:"s3_bucket"`
	S3Region                    string         `json:"s3_region"`
	S3BaseEndpoint              string         `json:"s3_base_endpoint"`
	S3PublicBaseURL             string         `json:"s3_public_base_url"`
	MaxUploadBytes              int64          `json:"max_upload_bytes"`
	GoogleClientID              string         `json:"google_client_id"`
	GoogleClientSecret          string         `json:"google_client_secret"`
	GoogleCallbackURL           string         `json:"google_callback_url"`
	ClientURL                   string         `json:"client_url"`
	AuthRateLimit               float64        `json:"auth_rate_limit"`
	AuthRateBurst               int            `json:"auth_rate_burst"`
}

// parseJson loads the file named by -c/-config (if any) and overlays its
// non-zero values onto config.
func parseJson(config *Config, args []string) error {
	path := flagx.ConfigFile(args)
	if path == "" {
		return nil
	}

	file, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		return err
	}

	setString(&config.EndpointAddrHTTP, c.EndpointAddrHTTP)
	setString(&config.EndpointAddrGRPC, c.EndpointAddrGRPC)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.Environment, c.Environment)
	setString(&config.SecretKey, c.SecretKey)
	if c.AccessTokenValidityDuration.Duration != 0 {
		config.AccessTokenValidityDuration = c.AccessTokenValidityDuration.Duration
	}
	if c.PasswordHashTime != 0 {
		config.PasswordHashTime = c.PasswordHashTime
	}
	if c.PasswordHashMemoryKiB != 0 {
		config.PasswordHashMemoryKiB = c.PasswordHashMemoryKiB
	}
	if c.PasswordHashConcurrency != 0 {
		config.PasswordHashConcurrency = c.PasswordHashConcurrency
	}
	setString(&config.S3RootUser, c.S3RootUser)
	setString(&config.S3RootPassword, c.S3RootPassword)
	setString(&config.S3Bucket, c.S3Bucket)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)
	setString(&config.S3PublicBaseURL, c.S3PublicBaseURL)
	if c.MaxUploadBytes != 0 {
		config.MaxUploadBytes = c.MaxUploadBytes
	}
	setString(&config.GoogleClientID, c.GoogleClientID)
	setString(&config.GoogleClientSecret, c.GoogleClientSecret)
	setString(&config.GoogleCallbackURL, c.GoogleCallbackURL)
	setString(&config.ClientURL, c.ClientURL)
	if c.AuthRateLimit != 0 {
		config.AuthRateLimit = c.AuthRateLimit
	}
	if c.AuthRateBurst != 0 {
		config.AuthRateBurst = c.AuthRateBurst
	}
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
