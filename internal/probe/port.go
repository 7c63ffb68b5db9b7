package probe

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/cubeops/cubeops/internal/resource"
)

// PortProbe checks that a TCP endpoint accepts connections within a short
// timeout. There is no degraded state for a port: it either answers or not.
type PortProbe struct {
	DialTimeout time.Duration
}

func (p *PortProbe) Probe(ctx context.Context, res *resource.Resource) (resource.ObservedState, error) {
	spec := res.Port
	if spec == nil {
		return resource.ObservedState{}, fmt.Errorf("resource %s has no port spec", res.Address())
	}

	host := spec.Host
	if host == "" {
		host = "127.0.0.1"
	}
	addr := net.JoinHostPort(host, strconv.Itoa(spec.Port))

	d := net.Dialer{Timeout: p.DialTimeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return resource.AbsentState(), nil
	}
	_ = conn.Close()
	return resource.HealthyState(), nil
}
