// Package status implements the read-only introspection HTTP endpoint
// (spec.md ambient "observability", adapted from the teacher's management
// REST API): registry/loop/rate counters plus process stats, exposed over
// gin the way internal/api/server.go exposes the DNS management API, with
// gopsutil supplying the system figures the way handlers/health.go does.
package status

import "sync/atomic"

// Counters tracks process-wide Serveez activity, mirroring the teacher's
// atomic-counter-plus-Snapshot style (adapted from internal/server/stats.go
// in the original tree).
type Counters struct {
	socketsAccepted  atomic.Uint64
	socketsClosed    atomic.Uint64
	bytesIn          atomic.Uint64
	bytesOut         atomic.Uint64
	floodKicks       atomic.Uint64
	frequencyRejects atomic.Uint64
	aclRejects       atomic.Uint64
	detectionFailed  atomic.Uint64
}

// NewCounters returns a zeroed Counters.
func NewCounters() *Counters {
	return &Counters{}
}

func (c *Counters) RecordAccept()          { c.socketsAccepted.Add(1) }
func (c *Counters) RecordClose()           { c.socketsClosed.Add(1) }
func (c *Counters) RecordBytesIn(n int)    { c.bytesIn.Add(uint64(n)) }
func (c *Counters) RecordBytesOut(n int)   { c.bytesOut.Add(uint64(n)) }
func (c *Counters) RecordFloodKick()       { c.floodKicks.Add(1) }
func (c *Counters) RecordFrequencyReject() { c.frequencyRejects.Add(1) }
func (c *Counters) RecordACLReject()       { c.aclRejects.Add(1) }
func (c *Counters) RecordDetectionFailed() { c.detectionFailed.Add(1) }

// Snapshot is a point-in-time read of every counter.
type Snapshot struct {
	SocketsAccepted  uint64 `json:"sockets_accepted"`
	SocketsClosed    uint64 `json:"sockets_closed"`
	SocketsLive      int    `json:"sockets_live"`
	BytesIn          uint64 `json:"bytes_in"`
	BytesOut         uint64 `json:"bytes_out"`
	FloodKicks       uint64 `json:"flood_kicks"`
	FrequencyRejects uint64 `json:"frequency_rejects"`
	ACLRejects       uint64 `json:"acl_rejects"`
	DetectionFailed  uint64 `json:"detection_failed"`
}

// Snapshot reads every counter plus the current live socket count from reg.
func (c *Counters) Snapshot(liveSockets int) Snapshot {
	return Snapshot{
		SocketsAccepted:  c.socketsAccepted.Load(),
		SocketsClosed:    c.socketsClosed.Load(),
		SocketsLive:      liveSockets,
		BytesIn:          c.bytesIn.Load(),
		BytesOut:         c.bytesOut.Load(),
		FloodKicks:       c.floodKicks.Load(),
		FrequencyRejects: c.frequencyRejects.Load(),
		ACLRejects:       c.aclRejects.Load(),
		DetectionFailed:  c.detectionFailed.Load(),
	}
}
