package configuration

import (
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/pkg/errors"

	"gamepricetracker/internal/logger"
)

const (
	EnvAuthSecretKey  = "PRICETRACKER_AUTH_SECRET_KEY"
	EnvCronSecretHash = "PRICETRACKER_CRON_SECRET_HASH"
	EnvDatabaseURI    = "PRICETRACKER_DATABASE_URI"
	EnvRedisAddress   = "PRICETRACKER_REDIS_ADDRESS"
)

type Config struct {
	ServerAddress     string
	DatabaseURI       string
	RedisAddress      string
	FetchDataInterval time.Duration
	LogLevel          logger.Level
	LogToFile         bool
	AuthSecretKey     jwk.Key `json:"-"`
	CronSecretHash    string  `json:"-"`

	NintendoCountry   string
	NintendoLang      string
	PlayStationLocale string
	SteamCountry      string
	SteamLang         string

	NintendoBatchSize    int
	PlayStationBatchSize int
	SteamBatchSize       int
	ItemDelayMin         time.Duration
	ItemDelayMax         time.Duration
	BatchDelay           time.Duration
	PipelineDelay        time.Duration
}

// NintendoLocale is the "/en-ca/" style path segment of Nintendo store URLs.
func (c Config) NintendoLocale() string {
	return strings.ToLower(c.NintendoLang + "-" + c.NintendoCountry)
}

type tomlConfig struct {
	ServerAddress     string       `toml:"server_address"`
	DatabaseURI       string       `toml:"database_uri"`
	RedisAddress      string       `toml:"redis_address"`
	FetchDataInterval string       `toml:"fetch_data_interval"`
	LogLevel          logger.Level `toml:"log_level"`
	LogToFile         bool         `toml:"log_to_file"`
	AuthSecretKey     string       `toml:"auth_secret_key"`
	CronSecretHash    string       `toml:"cron_secret_hash"`

	Storefront struct {
		NintendoCountry   string `toml:"nintendo_country"`
		NintendoLang      string `toml:"nintendo_lang"`
		PlayStationLocale string `toml:"playstation_locale"`
		SteamCountry      string `toml:"steam_country"`
		SteamLang         string `toml:"steam_lang"`
	} `toml:"storefront"`

	Refresh struct {
		NintendoBatchSize    int    `toml:"nintendo_batch_size"`
		PlayStationBatchSize int    `toml:"playstation_batch_size"`
		SteamBatchSize       int    `toml:"steam_batch_size"`
		ItemDelayMin         string `toml:"item_delay_min"`
		ItemDelayMax         string `toml:"item_delay_max"`
		BatchDelay           string `toml:"batch_delay"`
		PipelineDelay        string `toml:"pipeline_delay"`
	} `toml:"refresh"`
}

// GetConfig reads the toml file at path. Variables from a .env file in the
// working directory, or from the environment, override the secrets and
// connection strings of the file.
func GetConfig(path string) (*Config, error) {
	tc := tomlConfig{LogLevel: logger.LevelInfo}
	_, err := toml.DecodeFile(path, &tc)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to decode toml file with path: %s", path)
	}

	if err = godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, errors.Wrap(err, "failed to load .env file")
	}
	overrideFromEnv(&tc.AuthSecretKey, EnvAuthSecretKey)
	overrideFromEnv(&tc.CronSecretHash, EnvCronSecretHash)
	overrideFromEnv(&tc.DatabaseURI, EnvDatabaseURI)
	overrideFromEnv(&tc.RedisAddress, EnvRedisAddress)

	return tc.toConfig()
}

func overrideFromEnv(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func (tc tomlConfig) toConfig() (*Config, error) {
	c := Config{
		ServerAddress:        orDefault(tc.ServerAddress, "localhost:8888"),
		DatabaseURI:          orDefault(tc.DatabaseURI, "mongodb://localhost:27017"),
		RedisAddress:         orDefault(tc.RedisAddress, "localhost:6379"),
		LogLevel:             tc.LogLevel,
		LogToFile:            tc.LogToFile,
		CronSecretHash:       tc.CronSecretHash,
		NintendoCountry:      strings.ToUpper(orDefault(tc.Storefront.NintendoCountry, "CA")),
		NintendoLang:         strings.ToLower(orDefault(tc.Storefront.NintendoLang, "en")),
		PlayStationLocale:    strings.ToLower(orDefault(tc.Storefront.PlayStationLocale, "en-ca")),
		SteamCountry:         strings.ToLower(orDefault(tc.Storefront.SteamCountry, "ca")),
		SteamLang:            orDefault(tc.Storefront.SteamLang, "english"),
		NintendoBatchSize:    orDefaultInt(tc.Refresh.NintendoBatchSize, 5),
		PlayStationBatchSize: orDefaultInt(tc.Refresh.PlayStationBatchSize, 5),
		SteamBatchSize:       orDefaultInt(tc.Refresh.SteamBatchSize, 10),
	}

	if tc.FetchDataInterval == "" {
		return nil, errors.New("fetch_data_interval is not set")
	}
	var err error
	if c.FetchDataInterval, err = time.ParseDuration(tc.FetchDataInterval); err != nil {
		return nil, errors.Wrapf(err, "failed to parse fetch_data_interval: %s", tc.FetchDataInterval)
	}
	if c.FetchDataInterval < 15*time.Minute {
		return nil, errors.Errorf("fetch_data_interval too short (%v), minimum interval: 15m", c.FetchDataInterval)
	}

	for _, d := range []struct {
		name string
		raw  string
		def  time.Duration
		dst  *time.Duration
	}{
		{"item_delay_min", tc.Refresh.ItemDelayMin, 2 * time.Second, &c.ItemDelayMin},
		{"item_delay_max", tc.Refresh.ItemDelayMax, 5 * time.Second, &c.ItemDelayMax},
		{"batch_delay", tc.Refresh.BatchDelay, 3 * time.Second, &c.BatchDelay},
		{"pipeline_delay", tc.Refresh.PipelineDelay, 2 * time.Second, &c.PipelineDelay},
	} {
		*d.dst = d.def
		if d.raw == "" {
			continue
		}
		if *d.dst, err = time.ParseDuration(d.raw); err != nil {
			return nil, errors.Wrapf(err, "failed to parse %s: %s", d.name, d.raw)
		}
		if *d.dst < 0 {
			return nil, errors.Errorf("%s is negative: %v", d.name, *d.dst)
		}
	}
	if c.ItemDelayMax < c.ItemDelayMin {
		return nil, errors.Errorf("item_delay_max (%v) is below item_delay_min (%v)", c.ItemDelayMax, c.ItemDelayMin)
	}

	if tc.AuthSecretKey == "" {
		return nil, errors.New("auth_secret_key is not set")
	}
	if c.AuthSecretKey, err = jwk.FromRaw([]byte(tc.AuthSecretKey)); err != nil {
		return nil, errors.Wrap(err, "failed to create key from auth_secret_key")
	}

	return &c, nil
}

func orDefault(s string, def string) string {
	if s == "" {
		return def
	}
	return s
}

func orDefaultInt(n int, def int) int {
	if n <= 0 {
		return def
	}
	return n
}
