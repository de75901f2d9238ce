package portcfg

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Load reads a Config from configPath (if non-empty) and hardcoded defaults,
// with environment variables (SERVEEZ_* prefix) overriding both, then
// validates and normalizes it.
func Load(configPath string) (*Config, error) {
	v, err := initConfig(configPath)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("portcfg: decode: %w", err)
	}

	if err := normalize(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func initConfig(configPath string) (*viper.Viper, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("SERVEEZ")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("portcfg: read config file: %w", err)
		}
	}
	return v, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ports", []Port{})
	v.SetDefault("logging.level", "INFO")
	v.SetDefault("logging.structured", false)
	v.SetDefault("logging.structured_format", "json")
	v.SetDefault("logging.include_pid", false)
	v.SetDefault("logging.extra_fields", map[string]string{})
	v.SetDefault("status.enabled", false)
	v.SetDefault("status.host", "127.0.0.1")
	v.SetDefault("status.port", 8090)
}

// defaultsFor fills the per-port defaults spec.md leaves implicit: buffer
// sizes default to buffer.DefaultSize-equivalent 8 KiB, backlog to 511
// (teacher's listenTCPReusePort default), flood_limit to
// socket.DefaultFloodLimit-equivalent 100, connect_freq to unrestricted (0
// means "not enforced", spec.md §4.8).
func defaultsFor(p *Port) {
	if p.Backlog == 0 {
		p.Backlog = 511
	}
	if p.SendBufSize == 0 {
		p.SendBufSize = 8 * 1024
	}
	if p.RecvBufSize == 0 {
		p.RecvBufSize = 8 * 1024
	}
	if p.DetectionWait == 0 {
		p.DetectionWait = 30
	}
	if p.DetectionFill == 0 {
		p.DetectionFill = 16 * 1024
	}
	if p.FloodLimit == 0 {
		p.FloodLimit = 100
	}
}

// normalize fills per-port defaults and validates required fields
// (spec.md §3, §6).
func normalize(cfg *Config) error {
	seen := make(map[string]bool, len(cfg.Ports))
	for i := range cfg.Ports {
		p := &cfg.Ports[i]
		if p.Name == "" {
			return fmt.Errorf("portcfg: ports[%d]: name is required", i)
		}
		if seen[p.Name] {
			return fmt.Errorf("portcfg: duplicate port name %q", p.Name)
		}
		seen[p.Name] = true

		switch p.Proto {
		case ProtoTCP, ProtoUDP, ProtoICMP, ProtoRAW:
			if p.IPAddr == "" {
				p.IPAddr = AnyAddress
			}
			if p.Proto != ProtoICMP && p.Proto != ProtoRAW && p.PortNumber == 0 {
				return fmt.Errorf("portcfg: port %q: port number is required for %s", p.Name, p.Proto)
			}
			defaultsFor(p)
		case ProtoPipe:
			if p.RecvPipe.Path == "" && p.SendPipe.Path == "" {
				return fmt.Errorf("portcfg: port %q: recv_pipe or send_pipe path is required", p.Name)
			}
			defaultsFor(p)
		default:
			return fmt.Errorf("portcfg: port %q: unknown proto %q", p.Name, p.Proto)
		}
	}
	return nil
}

// IsAny reports whether p is configured for INADDR_ANY expansion.
func (p Port) IsAny() bool {
	return p.IPAddr == AnyAddress || p.IPAddr == ""
}
