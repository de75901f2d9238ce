package portcfg

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsOnly(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Empty(t, cfg.Ports)
	assert.Equal(t, "INFO", cfg.Logging.Level)
	assert.Equal(t, 8090, cfg.Status.Port)
}

func TestLoad_FromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "serveez.yaml")
	yaml := `
ports:
  - name: http
    proto: tcp
    port: 8080
    backlog: 256
  - name: syslog
    proto: udp
    port: 5140
logging:
  level: DEBUG
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Len(t, cfg.Ports, 2)
	assert.Equal(t, "http", cfg.Ports[0].Name)
	assert.Equal(t, 256, cfg.Ports[0].Backlog)
	assert.Equal(t, 8*1024, cfg.Ports[0].SendBufSize)
	assert.Equal(t, "DEBUG", cfg.Logging.Level)
}

func TestNormalize_RejectsDuplicateNames(t *testing.T) {
	cfg := &Config{Ports: []Port{
		{Name: "a", Proto: ProtoTCP, PortNumber: 1},
		{Name: "a", Proto: ProtoTCP, PortNumber: 2},
	}}
	err := normalize(cfg)
	assert.Error(t, err)
}

func TestNormalize_RejectsMissingPipePaths(t *testing.T) {
	cfg := &Config{Ports: []Port{{Name: "p", Proto: ProtoPipe}}}
	err := normalize(cfg)
	assert.Error(t, err)
}

func TestPort_IsAny(t *testing.T) {
	assert.True(t, Port{IPAddr: "*"}.IsAny())
	assert.True(t, Port{}.IsAny())
	assert.False(t, Port{IPAddr: "192.168.1.5"}.IsAny())
}

func TestPort_PortUint16(t *testing.T) {
	assert.Equal(t, uint16(0), Port{PortNumber: -1}.PortUint16())
	assert.Equal(t, uint16(8080), Port{PortNumber: 8080}.PortUint16())
	assert.Equal(t, uint16(65535), Port{PortNumber: 65535}.PortUint16())
	assert.Equal(t, uint16(65535), Port{PortNumber: 70000}.PortUint16())
}
