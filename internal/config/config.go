// Package config holds the client configuration: relay endpoints, the local
// service to expose, and tunnel timing knobs.
package config

import (
	"net"
	"os"
	"strconv"
	"time"

	"gopkg.in/ini.v1"
)

// Defaults. The local service defaults to SSH on loopback; the connect
// timeout and retry delay match the relay's expectations for a
// run-forever client.
const (
	DefaultLocalHost      = "127.0.0.1"
	DefaultLocalPort      = 22
	DefaultConnectTimeout = 10 * time.Second
	DefaultRetryDelay     = 5 * time.Second
	DefaultSoftware       = "0.0.1"
)

// Config stores all parameters for one tunnel client process. Fields map
// onto the DEFAULT section of an INI file; a handful can additionally be
// overridden through RTUN_* environment variables (useful on PaaS hosts
// that inject endpoints into the environment).
type Config struct {
	RelayHost string `ini:"relay_host"` // relay control endpoint host
	RelayPort int    `ini:"relay_port"` // relay control endpoint port

	LocalHost string `ini:"local_host"` // local service host to bridge to
	LocalPort int    `ini:"local_port"` // local service port to bridge to

	UseWebSocket bool   `ini:"use_websocket"` // dial relay endpoints over WebSocket
	WSPath       string `ini:"ws_path"`       // relay WebSocket endpoint path

	ConnectTimeout time.Duration `ini:"connect_timeout"` // control channel connect timeout
	RetryDelay     time.Duration `ini:"retry_delay"`     // fixed delay between reconnect attempts

	Software string `ini:"software"` // version string advertised in the allocation request

	// InertOnBindFailure restores the legacy behavior of leaving a data
	// session open but non-functional after a rejected bind, instead of
	// closing it outright.
	InertOnBindFailure bool `ini:"inert_on_bind_failure"`
}

// Default returns a Config populated with the package defaults. The relay
// endpoint has no default; it comes from the command line or a file.
func Default() *Config {
	return &Config{
		LocalHost:      DefaultLocalHost,
		LocalPort:      DefaultLocalPort,
		ConnectTimeout: DefaultConnectTimeout,
		RetryDelay:     DefaultRetryDelay,
		Software:       DefaultSoftware,
	}
}

// LoadIni loads the DEFAULT section of fileName into cfg, then applies
// environment overrides.
func LoadIni(cfg *Config, fileName string) error {
	iniFile, err := ini.Load(fileName)
	if err != nil {
		return err
	}

	if err := iniFile.MapTo(cfg); err != nil {
		return err
	}

	overrideFromEnv(&cfg.RelayHost, "RTUN_RELAY_HOST")
	overrideFromEnvInt(&cfg.RelayPort, "RTUN_RELAY_PORT")
	overrideFromEnvInt(&cfg.LocalPort, "RTUN_LOCAL_PORT")

	return nil
}

// ControlAddr returns the relay control endpoint as "host:port".
func (c *Config) ControlAddr() string {
	return net.JoinHostPort(c.RelayHost, strconv.Itoa(c.RelayPort))
}

// LocalAddr returns the bridged local service endpoint as "host:port".
func (c *Config) LocalAddr() string {
	return net.JoinHostPort(c.LocalHost, strconv.Itoa(c.LocalPort))
}

func overrideFromEnv(target *string, envName string) {
	if envValue := os.Getenv(envName); envValue != "" {
		*target = envValue
	}
}

func overrideFromEnvInt(target *int, envName string) {
	envValue := os.Getenv(envName)
	if envValue != "" {
		if intValue, err := strconv.Atoi(envValue); err == nil {
			*target = intValue
		}
	}
}
