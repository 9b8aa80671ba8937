// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"fmt"
	"net/netip"
	"strings"

	"github.com/bassosimone/uishell/netsim"
	"github.com/bassosimone/uishell/resolver"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

// Config is the configuration of the shell and of the lab internet.
type Config struct {
	ClientAddr  string              `mapstructure:"client-addr"`
	ServerAddr  string              `mapstructure:"server-addr"`
	DNSPort     uint16              `mapstructure:"dns-port"`
	MTU         uint32              `mapstructure:"mtu"`
	PCAPFile    string              `mapstructure:"pcap-file"`
	PCAPSnaplen uint16              `mapstructure:"pcap-snaplen"`
	LogLevel    string              `mapstructure:"log-level"`
	Prompt      string              `mapstructure:"prompt"`
	Zone        map[string][]string `mapstructure:"zone"`
}

// envPrefix is the prefix of the environment variables.
const envPrefix = "UISHELL"

// defaultZone maps each name to addresses or to the name it aliases.
var defaultZone = map[string][]string{
	"example.com":     {"10.0.0.1"},
	"www.example.com": {"example.com"},
}

// newViper creates the viper instance. Zone names contain dots, so
// the key delimiter cannot be the dot.
func newViper() *viper.Viper {
	v := viper.NewWithOptions(viper.KeyDelimiter("::"))
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	v.SetDefault("zone", defaultZone)
	return v
}

// loadConfig reads the optional config file and unmarshals the settings.
// Flags bound to v take precedence over environment and file.
func loadConfig(v *viper.Viper, configFile string) (*Config, error) {
	if configFile != "" {
		v.SetConfigFile(configFile)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("could not read config: %w", err)
		}
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("could not unmarshal config: %w", err)
	}
	return &cfg, nil
}

// addrs parses the client and server addresses.
func (c *Config) addrs() (client, server netip.Addr, err error) {
	if client, err = netip.ParseAddr(c.ClientAddr); err != nil {
		return client, server, fmt.Errorf("client-addr: %w", err)
	}
	if server, err = netip.ParseAddr(c.ServerAddr); err != nil {
		return client, server, fmt.Errorf("server-addr: %w", err)
	}
	if client == server {
		return client, server, fmt.Errorf("client-addr and server-addr must differ")
	}
	return client, server, nil
}

// mtu returns the configured MTU, or the default one.
func (c *Config) mtu() uint32 {
	if c.MTU == 0 {
		return netsim.MTUEthernet
	}
	return c.MTU
}

// logLevel parses the log level.
func (c *Config) logLevel() (zerolog.Level, error) {
	level, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel))
	if err != nil {
		return zerolog.NoLevel, fmt.Errorf("log-level: %w", err)
	}
	return level, nil
}

// zone converts the configured zone. Each value is either an IPv4
// address or the single name the key is an alias for.
func (c *Config) zone() (resolver.Zone, error) {
	zone := resolver.Zone{}
	for name, values := range c.Zone {
		var rec resolver.Record
		for _, value := range values {
			if addr, err := netip.ParseAddr(value); err == nil {
				if !addr.Is4() {
					return nil, fmt.Errorf("zone: %s: not an IPv4 address: %s", name, value)
				}
				rec.Addrs = append(rec.Addrs, addr)
				continue
			}
			if rec.CNAME != "" {
				return nil, fmt.Errorf("zone: %s: more than one alias", name)
			}
			rec.CNAME = normalizeName(value)
		}
		if rec.CNAME != "" && len(rec.Addrs) > 0 {
			return nil, fmt.Errorf("zone: %s: an alias cannot have addresses", name)
		}
		zone[normalizeName(name)] = rec
	}
	return zone, nil
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSuffix(name, "."))
}
