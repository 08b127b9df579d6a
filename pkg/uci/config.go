// Package uci loads the acsd daemon's configuration from UCI, the way
// every daemon in this tree does: either by shelling out to the `uci`
// binary when present, or by parsing the config file directly when it
// is not (container/dev environments without OpenWrt's UCI tooling).
package uci

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config holds every daemon-level knob acsd reads from UCI. The
// acs-core-relevant fields (AcsNumReqSurveys, AcsRocDurationMs) map
// directly onto pkg/acs.Config.
type Config struct {
	// Interface is the radio interface ACS runs against, e.g. "wlan0".
	Interface string
	// Band selects which channels pkg/iface.BuildMode considers:
	// "2.4ghz", "5ghz", or "both".
	Band string
	// RegDomain names the regulatory domain channel set to use.
	RegDomain string
	// UseDFS allows DFS-gated 5 GHz channels into the candidate set.
	UseDFS bool
	// Trigger selects when ACS runs on its own: "boot" starts one run at
	// daemon startup; any other value ("manual", "radar") starts none, and
	// runs are then started only through the control plane.
	Trigger string

	// AcsNumReqSurveys is the required number of full survey passes.
	AcsNumReqSurveys int
	// AcsRocDurationMs is the per-channel remain-on-channel dwell, ms.
	AcsRocDurationMs int

	// DryRun logs the bring-up action instead of applying it.
	DryRun bool

	LogLevel string

	MQTT    MQTTConfig
	Metrics MetricsConfig
	Health  HealthConfig
	Audit   AuditConfig
	History HistoryConfig
	GRPC    GRPCConfig
}

// MQTTConfig mirrors pkg/mqtt.Config's UCI-facing fields.
type MQTTConfig struct {
	Enabled     bool
	Broker      string
	Port        int
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
	QoS         int
	Retain      bool
}

// MetricsConfig controls the Prometheus exporter.
type MetricsConfig struct {
	Enabled bool
	Listen  string
}

// HealthConfig controls the status/health HTTP + websocket surface.
type HealthConfig struct {
	Enabled bool
	Listen  string
}

// AuditConfig controls the bbolt-backed decision audit trail.
type AuditConfig struct {
	Enabled  bool
	Path     string
	Checksum bool
}

// HistoryConfig controls the sqlite3-backed long-horizon survey history.
type HistoryConfig struct {
	Enabled bool
	Path    string
}

// GRPCConfig controls the JSON-codec gRPC control-plane RPC surface.
type GRPCConfig struct {
	Enabled bool
	Listen  string
}

func setDefaults(c *Config) {
	c.Interface = "wlan0"
	c.Band = "both"
	c.RegDomain = "default"
	c.UseDFS = false
	c.Trigger = "boot"

	c.AcsNumReqSurveys = 3
	c.AcsRocDurationMs = 150

	c.LogLevel = "info"

	c.MQTT = MQTTConfig{
		Enabled:     false,
		Broker:      "localhost",
		Port:        1883,
		ClientID:    "acsd",
		TopicPrefix: "acs",
		QoS:         1,
		Retain:      true,
	}
	c.Metrics = MetricsConfig{Enabled: true, Listen: ":9120"}
	c.Health = HealthConfig{Enabled: true, Listen: ":8120"}
	c.Audit = AuditConfig{Enabled: true, Path: "/var/lib/acsd/audit.db", Checksum: true}
	c.History = HistoryConfig{Enabled: true, Path: "/var/lib/acsd/history.db"}
	c.GRPC = GRPCConfig{Enabled: true, Listen: "127.0.0.1:8121"}
}

// LoadConfig loads the acsd configuration, preferring a live `uci` binary
// and falling back to direct file parsing when UCI tooling isn't present.
func LoadConfig(path string) (*Config, error) {
	cfg := &Config{}
	setDefaults(cfg)

	if _, err := os.Stat("/sbin/uci"); err == nil {
		u := NewUCI(nil)
		if err := u.loadInto(cfg); err == nil {
			return cfg, nil
		}
	}

	if err := loadConfigFromFile(path, cfg); err != nil {
		return nil, fmt.Errorf("uci: load config from %s: %w", path, err)
	}
	return cfg, nil
}

// loadConfigFromFile parses a UCI-format config file directly, matching
// this tree's hand-rolled `config <type> <name>` / `option <name> <value>`
// parser rather than any generic config/viper layer.
func loadConfigFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // defaults stand
		}
		return err
	}

	var section string
	for _, raw := range strings.Split(string(data), "\n") {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		switch {
		case strings.HasPrefix(line, "config "):
			fields := strings.Fields(line)
			if len(fields) >= 2 {
				section = fields[1]
			}
		case strings.HasPrefix(line, "option "):
			fields := strings.Fields(line)
			if len(fields) < 3 {
				continue
			}
			option := fields[1]
			value := strings.Trim(strings.Join(fields[2:], " "), `"'`)
			parseOption(cfg, section, option, value)
		}
	}
	return nil
}

func parseOption(cfg *Config, section, option, value string) {
	switch section {
	case "acs":
		parseACSOption(cfg, option, value)
	case "mqtt":
		parseMQTTOption(cfg, option, value)
	case "metrics":
		cfg.Metrics = applyMetricsOption(cfg.Metrics, option, value)
	case "health":
		cfg.Health = applyHealthOption(cfg.Health, option, value)
	case "audit":
		cfg.Audit = applyAuditOption(cfg.Audit, option, value)
	case "history":
		cfg.History = applyHistoryOption(cfg.History, option, value)
	case "grpc":
		cfg.GRPC = applyGRPCOption(cfg.GRPC, option, value)
	}
}

func parseACSOption(cfg *Config, option, value string) {
	switch option {
	case "interface":
		cfg.Interface = value
	case "band":
		cfg.Band = value
	case "regdomain":
		cfg.RegDomain = value
	case "use_dfs":
		cfg.UseDFS = parseBool(value)
	case "trigger":
		cfg.Trigger = value
	case "acs_num_req_surveys":
		if n, err := strconv.Atoi(value); err == nil {
			cfg.AcsNumReqSurveys = n
		}
	case "acs_roc_duration_ms":
		if n, err := strconv.Atoi(value); err == nil {
			cfg.AcsRocDurationMs = n
		}
	case "dry_run":
		cfg.DryRun = parseBool(value)
	case "log_level":
		cfg.LogLevel = value
	}
}

func parseMQTTOption(cfg *Config, option, value string) {
	switch option {
	case "enabled":
		cfg.MQTT.Enabled = parseBool(value)
	case "broker":
		cfg.MQTT.Broker = value
	case "port":
		if n, err := strconv.Atoi(value); err == nil {
			cfg.MQTT.Port = n
		}
	case "client_id":
		cfg.MQTT.ClientID = value
	case "username":
		cfg.MQTT.Username = value
	case "password":
		cfg.MQTT.Password = value
	case "topic_prefix":
		cfg.MQTT.TopicPrefix = value
	case "qos":
		if n, err := strconv.Atoi(value); err == nil {
			cfg.MQTT.QoS = n
		}
	case "retain":
		cfg.MQTT.Retain = parseBool(value)
	}
}

func applyMetricsOption(m MetricsConfig, option, value string) MetricsConfig {
	switch option {
	case "enabled":
		m.Enabled = parseBool(value)
	case "listen":
		m.Listen = value
	}
	return m
}

func applyHealthOption(h HealthConfig, option, value string) HealthConfig {
	switch option {
	case "enabled":
		h.Enabled = parseBool(value)
	case "listen":
		h.Listen = value
	}
	return h
}

func applyAuditOption(a AuditConfig, option, value string) AuditConfig {
	switch option {
	case "enabled":
		a.Enabled = parseBool(value)
	case "path":
		a.Path = value
	case "checksum":
		a.Checksum = parseBool(value)
	}
	return a
}

func applyHistoryOption(h HistoryConfig, option, value string) HistoryConfig {
	switch option {
	case "enabled":
		h.Enabled = parseBool(value)
	case "path":
		h.Path = value
	}
	return h
}

func applyGRPCOption(g GRPCConfig, option, value string) GRPCConfig {
	switch option {
	case "enabled":
		g.Enabled = parseBool(value)
	case "listen":
		g.Listen = value
	}
	return g
}

func parseBool(v string) bool {
	return v == "1" || v == "true" || v == "yes" || v == "on"
}
