package api

import (
	"context"
	"crypto/tls"
	"math"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/etcbridge/etcbridge/pkg/etc"
)

// diagnostics returns GET /api/v1/diagnostics: engine reachability, TLS
// certificate posture, reference-data provenance, cache effectiveness and
// job totals in one payload.
func (h *Handler) diagnostics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	resp := DiagnosticsResponse{
		Engine:  h.probeEngine(r.Context()),
		Refdata: h.deps.Refdata.Status(),
		Cache:   h.deps.Cache.Stats(),
		History: HistoryDiagnostics{Backend: h.deps.HistoryBackend},
	}

	if n, err := h.deps.History.Count(r.Context()); err != nil {
		resp.History.Error = err.Error()
	} else {
		resp.History.Runs = n
	}

	resp.Jobs.Active, resp.Jobs.Done, resp.Jobs.Failed = h.deps.Jobs.Counts()

	jsonResp(w, http.StatusOK, resp)
}

// probeEngine runs one cheap calculation against the engine to confirm it
// answers, and inspects the endpoint's TLS certificate when it is HTTPS.
func (h *Handler) probeEngine(ctx context.Context) EngineDiagnostics {
	diag := EngineDiagnostics{Endpoint: h.deps.EngineEndpoint}

	probe := etc.ParamSet{MagAB: 20}
	if instruments := h.deps.Refdata.Instruments(); len(instruments) > 0 {
		probe = instruments[0].Defaults
	}

	probeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if _, err := h.deps.Engine.Calculate(probeCtx, probe); err != nil {
		diag.Error = err.Error()
	} else {
		diag.Reachable = true
	}

	if days, issuer, ok := certDaysLeft(probeCtx, h.deps.EngineEndpoint); ok {
		diag.CertDaysLeft = &days
		diag.CertIssuer = issuer
	}
	return diag
}

// certDaysLeft dials the HTTPS endpoint and reports days until the leaf
// certificate expires. Returns ok=false for plain-HTTP endpoints and dial
// failures.
func certDaysLeft(ctx context.Context, endpoint string) (days int, issuer string, ok bool) {
	u, err := url.Parse(endpoint)
	if err != nil || u.Scheme != "https" {
		return 0, "", false
	}

	host := u.Host
	if _, _, err := net.SplitHostPort(host); err != nil {
		host = net.JoinHostPort(host, "443")
	}

	dialer := &tls.Dialer{NetDialer: &net.Dialer{}}
	netConn, err := dialer.DialContext(ctx, "tcp", host)
	if err != nil {
		return 0, "", false
	}
	conn := netConn.(*tls.Conn)
	defer conn.Close()

	peerCerts := conn.ConnectionState().PeerCertificates
	if len(peerCerts) == 0 {
		return 0, "", false
	}

	leaf := peerCerts[0]
	left := leaf.NotAfter.Sub(time.Now()).Hours() / 24
	return int(math.Floor(left)), leaf.Issuer.CommonName, true
}
