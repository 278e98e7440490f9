// Package registryprober is the Package Registry Prober (spec C15): probes
// package existence and version availability against a Connector's external
// registry endpoint. Grounded on the teacher's health-check HTTP client
// pattern (internal/api/api.go's handleHealth does a trivial self-probe;
// the connect/read timeout split here generalizes the same *http.Client
// idiom to a real external dependency probe) and on declarative_sync.go's
// treatment of probe failures as non-fatal, logged outcomes.
package registryprober

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"time"

	"graymoon/internal/logging"
	"graymoon/pkg/models"
)

const (
	connectTimeout = 5 * time.Second
	readTimeout    = 15 * time.Second
)

// Prober checks whether a package (and, optionally, a specific version) is
// present in a PackageRegistry connector's catalog.
type Prober struct {
	client *http.Client
}

func New() *Prober {
	dialer := &net.Dialer{Timeout: connectTimeout}
	transport := &http.Transport{
		DialContext:         dialer.DialContext,
		TLSHandshakeTimeout: connectTimeout,
	}
	return &Prober{client: &http.Client{Transport: transport, Timeout: readTimeout}}
}

type catalogResponse struct {
	Versions []string `json:"versions"`
}

// PackageExists reports whether connector's catalog lists packageID at all.
// Failures of any kind (timeout, network, non-2xx, malformed body) are
// logged and reported as false, never returned as an error, per spec §4.12.
func (p *Prober) PackageExists(ctx context.Context, connector *models.Connector, packageID string) bool {
	versions, ok := p.fetchVersions(ctx, connector, packageID)
	return ok && len(versions) > 0
}

// PackageVersionExists reports whether version appears in the catalog's
// version list for packageID.
func (p *Prober) PackageVersionExists(ctx context.Context, connector *models.Connector, packageID, version string) bool {
	versions, ok := p.fetchVersions(ctx, connector, packageID)
	if !ok {
		return false
	}
	for _, v := range versions {
		if v == version {
			return true
		}
	}
	return false
}

func (p *Prober) fetchVersions(ctx context.Context, connector *models.Connector, packageID string) ([]string, bool) {
	url := strings.TrimRight(connector.BaseURL, "/") + "/" + packageID + "/index.json"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		logging.Error("registry prober: build request for %s: %v", connector.Name, err)
		return nil, false
	}
	applyAuth(req, connector)

	resp, err := p.client.Do(req)
	if err != nil {
		logging.Warn("registry prober: probe %s/%s failed: %v", connector.Name, packageID, err)
		return nil, false
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, true // reachable registry, package simply absent
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		logging.Warn("registry prober: %s/%s returned status %d", connector.Name, packageID, resp.StatusCode)
		return nil, false
	}

	var body catalogResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		logging.Warn("registry prober: decode catalog response from %s: %v", connector.Name, err)
		return nil, false
	}
	return body.Versions, true
}

// applyAuth selects Basic (user+token) over Bearer (token only) over no
// auth, per the private-catalog-server contract in spec §4.12. A
// VcsHost-style or public-open registry connector typically carries no
// UserName and relies on the Bearer branch, or neither when fully public.
func applyAuth(req *http.Request, connector *models.Connector) {
	if connector.Token == nil {
		return
	}
	if connector.UserName != nil && *connector.UserName != "" {
		req.SetBasicAuth(*connector.UserName, *connector.Token)
		return
	}
	req.Header.Set("Authorization", "Bearer "+*connector.Token)
}
