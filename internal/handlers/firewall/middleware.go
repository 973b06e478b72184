// Package firewall bans client IPs that keep producing suspicious requests,
// e.g. replayed refresh tokens or probing of undefined urls.
package firewall

import (
	"errors"
	"fmt"
	"net/http"
	"slices"
	"time"

	"github.com/gin-gonic/gin"
	zlog "github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	fw "github.com/charleshuang3/firewall"
	"github.com/charleshuang3/firewall/gcplog"
	"github.com/charleshuang3/firewall/ipgeo"
	"github.com/charleshuang3/firewall/opn"
	"github.com/charleshuang3/firewall/pf"
	"github.com/charleshuang3/firewall/ros"
	"github.com/charleshuang3/firewall/zerolog"
)

var (
	logger = log.With().Str("component", "firewall").Logger()
)

type ForgivableError struct {
	DurationInMinute uint `yaml:"duration_in_minute"`
	Count            uint `yaml:"count"`
}

type Config struct {
	Provider         string          `yaml:"provider"`
	ProviderIP       string          `yaml:"provider_ip"`
	ProviderUser     string          `yaml:"provider_user"`
	ProviderPassword string          `yaml:"provider_password"`
	ListUUID         string          `yaml:"list_uuid"`
	BanMinutes       uint            `yaml:"ban_minutes"`
	Whitelist        []string        `yaml:"whitelist"`
	Forgivable       ForgivableError `yaml:"forgivable"`

	CityDBFile        string `yaml:"city_db_file"`
	UpdatedCityDBFile string `yaml:"updated_city_db_file"`
	ASNDBFile         string `yaml:"asn_db_file"`
	UpdatedASNDBFile  string `yaml:"updated_asn_db_file"`

	GoogleKeyFile   string `yaml:"google_key_file"`
	GoogleProjectID string `yaml:"google_project_id"`
}

var (
	supportedProviders = []string{"none", "ros", "opn", "pf"}
)

const (
	appName = "finansecure-auth"

	defaultBanMinutes       = 10
	defaultDurationInMinute = 10
	defaultCount            = 3

	KeyHackingError = "HACKING_ERROR"
)

func (c *Config) Validate() error {
	if !slices.Contains(supportedProviders, c.Provider) {
		return fmt.Errorf("firewall: provider %q is not supported", c.Provider)
	}

	if c.Provider != "none" {
		if c.ProviderIP == "" {
			return errors.New("firewall: provider_ip is missing")
		}
		if c.ProviderUser == "" {
			return errors.New("firewall: provider_user is missing")
		}
		if c.ProviderPassword == "" {
			return errors.New("firewall: provider_password is missing")
		}
		if c.Provider == "opn" && c.ListUUID == "" {
			return errors.New("firewall: list_uuid is missing")
		}
	}

	if c.CityDBFile == "" || c.UpdatedCityDBFile == "" {
		return errors.New("firewall: city_db_file and updated_city_db_file are required")
	}
	if c.ASNDBFile == "" || c.UpdatedASNDBFile == "" {
		return errors.New("firewall: asn_db_file and updated_asn_db_file are required")
	}

	c.applyDefault()
	return nil
}

func (c *Config) applyDefault() {
	if c.BanMinutes == 0 {
		c.BanMinutes = defaultBanMinutes
	}

	if c.Forgivable.DurationInMinute == 0 {
		c.Forgivable.DurationInMinute = defaultDurationInMinute
	}

	if c.Forgivable.Count == 0 {
		c.Forgivable.Count = defaultCount
	}
}

type Firewall struct {
	fw   *fw.Firewall
	conf *Config
}

func New(conf *Config) (*Firewall, error) {
	var firewallProvider fw.IFirewall
	switch conf.Provider {
	case "ros":
		firewallProvider = ros.New(
			conf.ProviderIP, conf.ProviderUser, conf.ProviderPassword)
	case "pf":
		firewallProvider = pf.New(
			conf.ProviderIP, conf.ProviderUser, conf.ProviderPassword)
	case "opn":
		firewallProvider = opn.New(
			conf.ProviderIP, conf.ProviderUser, conf.ProviderPassword, conf.ListUUID)
	default:
		// keep firewallProvider nil which means no block on firewall
	}

	var fwlogger fw.ILogger
	if conf.GoogleKeyFile != "" {
		var err error
		fwlogger, err = gcplog.New(conf.GoogleKeyFile, conf.GoogleProjectID, appName)
		if err != nil {
			return nil, fmt.Errorf("failed to create gcp logger: %w", err)
		}
	} else {
		// fallback to local log if no google key file.
		fwlogger = zerolog.New(logger, zlog.InfoLevel, appName)
	}

	mm, err := ipgeo.NewAutoUpdateMMIPGeo(
		conf.CityDBFile,
		conf.UpdatedCityDBFile,
		conf.ASNDBFile,
		conf.UpdatedASNDBFile)
	if err != nil {
		return nil, fmt.Errorf("failed to open geo ip databases: %w", err)
	}

	return &Firewall{
		fw: fw.New(
			conf.Whitelist,
			firewallProvider,
			fwlogger,
			mm,
			fw.ForgivableError{
				Duration:    time.Duration(conf.Forgivable.DurationInMinute) * time.Minute,
				Count:       int(conf.Forgivable.Count),
				BanInMinute: int(conf.BanMinutes),
			}),
		conf: conf,
	}, nil
}

// Report marks the current request as a possible attack. The middleware
// counts it against the client IP once the handler returns.
func Report(c *gin.Context, reason string) {
	c.Set(KeyHackingError, c.FullPath()+" "+reason)
}

func (f *Firewall) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// run handle
		c.Next()

		// after handler
		reason, ok := c.Get(KeyHackingError)
		if ok {
			ip := c.ClientIP()
			f.fw.LogIPError(ip, reason.(string))
			return
		}

		// this means user request to url undefined in router.
		if c.Writer.Status() == http.StatusNotFound && c.FullPath() == "" {
			ip := c.ClientIP()
			f.fw.LogIPError(ip, "undefined_url")
			return
		}
	}
}
