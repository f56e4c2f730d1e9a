package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/NikhilSetiya/governance-orchestrator/pkg/types"
)

const defaultTenant = "default"

// fingerprintInput fixes the field order of the hashed JSON document
type fingerprintInput struct {
	Message     string   `json:"message"`
	Tenant      string   `json:"tenant"`
	Tool        string   `json:"tool"`
	Clients     []string `json:"clients"`
	Industry    string   `json:"industry"`
	Sensitivity []string `json:"sensitivity"`
	Deadline    string   `json:"deadline"`
}

// Fingerprint derives the cache key of a request. Requests that differ only in
// letter case, surrounding whitespace or list order share a key.
func Fingerprint(req *types.Request) CacheKey {
	tenant := strings.TrimSpace(req.Context.TenantID)
	if tenant == "" {
		tenant = defaultTenant
	}

	input := fingerprintInput{
		Message:     normalize(req.Message),
		Tenant:      tenant,
		Tool:        normalize(req.Context.Tool),
		Clients:     normalizeSet(req.Context.Clients),
		Industry:    normalize(req.Context.Industry),
		Sensitivity: normalizeSet(req.Context.DataSensitivity),
	}
	if req.Context.Deadline != nil {
		input.Deadline = req.Context.Deadline.UTC().Format(time.RFC3339)
	}

	// marshalling a struct of strings cannot fail
	data, _ := json.Marshal(input)
	sum := sha256.Sum256(data)

	return CacheKey{
		Prefix: PrefixDecision,
		ID:     tenant + ":" + hex.EncodeToString(sum[:]),
	}
}

// TenantPattern matches every decision cached for tenant
func TenantPattern(tenant string) string {
	return PrefixDecision + ":" + tenant + ":*"
}

func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

func normalizeSet(values []string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]bool, len(values))
	for _, v := range values {
		n := normalize(v)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
