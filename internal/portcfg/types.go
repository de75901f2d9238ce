// Package portcfg provides configuration loading and validation for
// Serveez port configurations, via Viper (spec.md §3 "Port configuration").
//
// Configuration is loaded with the following priority (highest to lowest):
//  1. Command-line flags (not handled here, see cmd/serveez/main.go)
//  2. Environment variables (SERVEEZ_* prefix)
//  3. YAML config file (if specified with --config)
//  4. Hardcoded defaults
//
// Environment variables are mapped from SERVEEZ_CATEGORY_SETTING format,
// e.g. SERVEEZ_LOGGING_LEVEL maps to logging.level in YAML. Only keys that
// already exist (through a default or the config file) are looked up in the
// environment, so individual fields of a ports entry cannot be set this way.
package portcfg

import "math"

// Proto names the wire protocol a port configuration is tagged with
// (spec.md §3 "Port configuration — tagged by protocol").
type Proto string

const (
	ProtoTCP  Proto = "tcp"
	ProtoUDP  Proto = "udp"
	ProtoICMP Proto = "icmp"
	ProtoRAW  Proto = "raw"
	ProtoPipe Proto = "pipe"
)

// AnyAddress is the INADDR_ANY sentinel address string (spec.md §3:
// `Address "*" means INADDR_ANY and expands at bind time to one port
// configuration per local interface`).
const AnyAddress = "*"

// Port is one port configuration: TCP/UDP/ICMP/RAW carry an IP address,
// port number, backlog, buffer sizes, detection window, flood limits,
// connect-frequency limit and optional bind device; PIPE carries two named
// pipe descriptors instead (spec.md §3).
type Port struct {
	Name string `yaml:"name"              mapstructure:"name"`
	Proto Proto `yaml:"proto"             mapstructure:"proto"`

	// IP-based fields (tcp/udp/icmp/raw).
	IPAddr       string `yaml:"ipaddr"            mapstructure:"ipaddr"`
	PortNumber   int    `yaml:"port"              mapstructure:"port"`
	Backlog      int    `yaml:"backlog"           mapstructure:"backlog"`
	Device       string `yaml:"device"            mapstructure:"device"`
	SendBufSize  int    `yaml:"send_buffer_size"  mapstructure:"send_buffer_size"`
	RecvBufSize  int    `yaml:"recv_buffer_size"  mapstructure:"recv_buffer_size"`
	MaxSockets   int    `yaml:"max_sockets"       mapstructure:"max_sockets"`

	// Detection policy (spec.md §4.6).
	DetectionWait int `yaml:"detection_wait"    mapstructure:"detection_wait"` // seconds
	DetectionFill int `yaml:"detection_fill"    mapstructure:"detection_fill"` // bytes

	// Flood and rate policy (spec.md §4.8).
	FloodLimit   int `yaml:"flood_limit"       mapstructure:"flood_limit"`
	ConnectFreq  int `yaml:"connect_freq"      mapstructure:"connect_freq"`

	// ACLs (spec.md §6 "allow/deny: optional IP ACLs").
	Allow []string `yaml:"allow"             mapstructure:"allow"`
	Deny  []string `yaml:"deny"              mapstructure:"deny"`

	// Pipe fields (proto == pipe).
	RecvPipe PipeDescriptor `yaml:"recv_pipe"         mapstructure:"recv_pipe"`
	SendPipe PipeDescriptor `yaml:"send_pipe"         mapstructure:"send_pipe"`
}

// PortUint16 clamps PortNumber into the range a real TCP/UDP/ICMP port
// number or RAW protocol number can occupy. Port configurations are loaded
// as plain ints (YAML/env have no unsigned-16 type), so every call site
// that hands PortNumber to a socket syscall goes through here rather than a
// bare uint16(p.PortNumber) conversion.
func (p Port) PortUint16() uint16 {
	switch {
	case p.PortNumber < 0:
		return 0
	case p.PortNumber > math.MaxUint16:
		return math.MaxUint16
	default:
		return uint16(p.PortNumber)
	}
}

// PipeDescriptor names a single named pipe endpoint (spec.md §3: "PIPE
// carries two named pipe descriptors (path, mode, owner, group)").
type PipeDescriptor struct {
	Path  string `yaml:"path"  mapstructure:"path"`
	Mode  string `yaml:"mode"  mapstructure:"mode"`
	Owner string `yaml:"owner" mapstructure:"owner"`
	Group string `yaml:"group" mapstructure:"group"`
}

// Config is the full set of port configurations plus the ambient settings
// (logging, status endpoint) loaded together from one file.
type Config struct {
	Ports   []Port        `yaml:"ports"   mapstructure:"ports"`
	Logging LoggingConfig `yaml:"logging" mapstructure:"logging"`
	Status  StatusConfig  `yaml:"status"  mapstructure:"status"`
}

// LoggingConfig mirrors the teacher's logging settings (internal/logging),
// kept unchanged in shape since the ambient logging stack is not part of
// this transformation.
type LoggingConfig struct {
	Level            string            `yaml:"level"             mapstructure:"level"`
	Structured       bool              `yaml:"structured"        mapstructure:"structured"`
	StructuredFormat string            `yaml:"structured_format" mapstructure:"structured_format"`
	IncludePID       bool              `yaml:"include_pid"       mapstructure:"include_pid"`
	ExtraFields      map[string]string `yaml:"extra_fields"      mapstructure:"extra_fields"`
}

// StatusConfig controls the read-only introspection HTTP endpoint
// (internal/status).
type StatusConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Host    string `yaml:"host"    mapstructure:"host"`
	Port    int    `yaml:"port"    mapstructure:"port"`
}
