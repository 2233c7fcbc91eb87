package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"daoledger/internal/core"
)

type Config struct {
	// HTTP Server
	Port string

	// Database
	SQLiteDBPath string

	// Indexer
	IndexerBaseURL string
	Network        string
	MainDAOAddress string
	// SubUnits is "name=address" pairs, comma separated. Used when sub-DAO
	// discovery via the main DAO is not wanted.
	SubUnits       string
	ProposalStatus string

	// Recipient classification
	CoreTeamAddresses string // newline or comma separated

	// Token metadata and pricing
	ChainlistURL  string
	TokenDataFile string
	PricesFile    string

	// AMQP
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Worker
	RefreshInterval time.Duration
}

func Load() *Config {
	return &Config{
		Port:         getEnv("PORT", "8081"),
		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/daoledger.db"),

		IndexerBaseURL: getEnv("INDEXER_BASE_URL", "https://indexer.daodao.zone"),
		Network:        getEnv("NETWORK", string(core.NetworkOsmosis)),
		MainDAOAddress: getEnv("MAIN_DAO_ADDRESS", ""),
		SubUnits:       getEnv("SUB_UNITS", ""),
		ProposalStatus: getEnv("PROPOSAL_STATUS", "passed"),

		CoreTeamAddresses: getEnv("CORE_TEAM_ADDRESSES", ""),

		ChainlistURL:  getEnv("CHAINLIST_ASSETS_URL", "https://raw.githubusercontent.com/cosmostation/chainlist/refs/heads/main/chain/osmosis/assets_2.json"),
		TokenDataFile: getEnv("TOKEN_DATA_FILE", ""),
		PricesFile:    getEnv("PRICES_FILE", ""),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "daoledger"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "refresh_subunits"),

		RefreshInterval: getEnvDuration("REFRESH_INTERVAL", 1*time.Hour),
	}
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errs []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errs = append(errs, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errs = append(errs, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if _, err := core.ParseNetwork(c.Network); err != nil {
		errs = append(errs, fmt.Sprintf("invalid network '%s': must be one of %v", c.Network, core.Networks()))
	}

	if u, err := url.Parse(c.IndexerBaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Sprintf("invalid indexer base URL '%s': must be an http(s) URL", c.IndexerBaseURL))
	}

	if c.MainDAOAddress == "" && c.SubUnits == "" {
		errs = append(errs, "either MAIN_DAO_ADDRESS or SUB_UNITS must be set")
	}
	if _, err := c.ParseSubUnits(); err != nil {
		errs = append(errs, fmt.Sprintf("invalid SUB_UNITS '%s': %v", c.SubUnits, err))
	}

	if c.SQLiteDBPath == "" {
		errs = append(errs, "SQLite database path cannot be empty")
	} else {
		dir := filepath.Dir(c.SQLiteDBPath)
		if dir != "." && dir != "" {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				if err := os.MkdirAll(dir, 0755); err != nil {
					errs = append(errs, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
				}
			}
		}
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errs = append(errs, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errs = append(errs, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errs = append(errs, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errs = append(errs, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	if c.RefreshInterval < time.Minute {
		errs = append(errs, fmt.Sprintf("invalid refresh interval %v: must be at least 1 minute", c.RefreshInterval))
	} else if c.RefreshInterval > 7*24*time.Hour {
		errs = append(errs, fmt.Sprintf("invalid refresh interval %v: must be at most 7 days", c.RefreshInterval))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errs, "\n- "))
	}

	return nil
}

// ParseSubUnits parses the SUB_UNITS setting into sub-unit records.
// Entries are "name=address" or a bare address, comma separated.
func (c *Config) ParseSubUnits() ([]core.SubUnit, error) {
	if strings.TrimSpace(c.SubUnits) == "" {
		return nil, nil
	}
	var units []core.SubUnit
	for _, entry := range strings.Split(c.SubUnits, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		name, addr, found := strings.Cut(entry, "=")
		if !found {
			addr = name
			name = ""
		}
		u := core.SubUnit{Name: strings.TrimSpace(name), Address: strings.TrimSpace(addr)}
		if err := u.Validate(); err != nil {
			return nil, fmt.Errorf("entry %q: %w", entry, err)
		}
		units = append(units, u)
	}
	return units, nil
}

// ParseCoreTeamAddresses splits the configured core-team address list.
func (c *Config) ParseCoreTeamAddresses() []string {
	split := func(r rune) bool { return r == ',' || r == '\n' }
	var addrs []string
	for _, a := range strings.FieldsFunc(c.CoreTeamAddresses, split) {
		if a = strings.TrimSpace(a); a != "" {
			addrs = append(addrs, a)
		}
	}
	return addrs
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
