package probes

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"time"

	"github.com/probelab/capscan/internal/model"
	"github.com/probelab/capscan/internal/registry"
)

// tlsExpiryWarn is the remaining certificate lifetime below which the TLS
// capability is reported as partial.
const tlsExpiryWarn = 30 * 24 * time.Hour

// dnsExecutor resolves the target hostname. Resolution failure is a
// deliberate "unsupported" outcome, not a probe error: the capability under
// test is name resolution itself.
func dnsExecutor(host string) registry.Executor {
	return registry.ExecutorFunc(func(ctx context.Context, _ model.Environment) (model.Outcome, error) {
		start := time.Now()
		addrs, err := net.DefaultResolver.LookupHost(ctx, host)
		if err != nil {
			return model.Outcome{
				Status:  model.StatusUnsupported,
				Details: fmt.Sprintf("cannot resolve %s: %v", host, err),
			}, nil
		}

		return model.Outcome{
			Status:  model.StatusSupported,
			Details: fmt.Sprintf("resolved %s to %d address(es) in %s", host, len(addrs), time.Since(start).Round(time.Millisecond)),
			Payload: map[string]any{"host": host, "addresses": addrs},
		}, nil
	})
}

// tcpExecutor dials the target host:port.
func tcpExecutor(addr string) registry.Executor {
	return registry.ExecutorFunc(func(ctx context.Context, _ model.Environment) (model.Outcome, error) {
		var d net.Dialer
		start := time.Now()
		conn, err := d.DialContext(ctx, "tcp", addr)
		if err != nil {
			return model.Outcome{
				Status:  model.StatusUnsupported,
				Details: fmt.Sprintf("cannot connect to %s: %v", addr, err),
			}, nil
		}
		defer conn.Close()
		latency := time.Since(start)

		return model.Outcome{
			Status:  model.StatusSupported,
			Details: fmt.Sprintf("connected to %s (%s) in %s", addr, conn.RemoteAddr(), latency.Round(time.Millisecond)),
			Payload: map[string]any{
				"addr":       addr,
				"remote":     conn.RemoteAddr().String(),
				"latency_ms": latency.Milliseconds(),
			},
		}, nil
	})
}

// tlsExecutor performs a TLS handshake against the target and inspects the
// leaf certificate's remaining lifetime.
func tlsExecutor(addr string) registry.Executor {
	return registry.ExecutorFunc(func(ctx context.Context, _ model.Environment) (model.Outcome, error) {
		d := tls.Dialer{}
		conn, err := d.DialContext(ctx, "tcp", addr)
		if err != nil {
			return model.Outcome{
				Status:  model.StatusUnsupported,
				Details: fmt.Sprintf("TLS handshake with %s failed: %v", addr, err),
			}, nil
		}
		defer conn.Close()

		state := conn.(*tls.Conn).ConnectionState()
		if len(state.PeerCertificates) == 0 {
			return model.Outcome{
				Status:  model.StatusPartial,
				Details: fmt.Sprintf("TLS handshake with %s succeeded but no peer certificate was presented", addr),
			}, nil
		}

		leaf := state.PeerCertificates[0]
		remaining := time.Until(leaf.NotAfter)
		days := int(remaining.Hours() / 24)

		status := model.StatusSupported
		details := fmt.Sprintf("%s via %s, certificate valid for %d more days", addr, tls.VersionName(state.Version), days)
		if remaining < tlsExpiryWarn {
			status = model.StatusPartial
			details = fmt.Sprintf("%s via %s, certificate expires in %d days", addr, tls.VersionName(state.Version), days)
		}

		score := days
		if score > 100 {
			score = 100
		}
		if score < 0 {
			score = 0
		}

		return model.Outcome{
			Status:  status,
			Details: details,
			Score:   &score,
			Payload: map[string]any{
				"addr":        addr,
				"tls_version": tls.VersionName(state.Version),
				"issuer":      leaf.Issuer.String(),
				"not_after":   leaf.NotAfter,
			},
		}, nil
	})
}
