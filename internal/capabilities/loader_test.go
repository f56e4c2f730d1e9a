package capabilities

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NikhilSetiya/governance-orchestrator/pkg/capability"
	"github.com/NikhilSetiya/governance-orchestrator/pkg/errors"
	"github.com/NikhilSetiya/governance-orchestrator/pkg/types"
)

const definitions = `
capabilities:
  - name: context
    default:
      confidence: 0.8
      summary: context gathered
  - name: policy
    type: rules
    default:
      decision: approved
      confidence: 0.9
    rules:
      - name: gambling
        terms: [casino, betting]
        decision: rejected
        confidence: 0.95
  - name: audit
    type: http
    url: http://audit.internal:8080/invoke
    timeout: 5s
    headers:
      X-Api-Key: secret
`

func TestParse(t *testing.T) {
	caps, err := Parse([]byte(definitions), nil)
	require.NoError(t, err)
	require.Len(t, caps, 3)

	assert.Equal(t, "context", caps[0].Name())
	assert.IsType(t, &RulesCapability{}, caps[0])
	assert.IsType(t, &RulesCapability{}, caps[1])

	audit, ok := caps[2].(*HTTPCapability)
	require.True(t, ok)
	assert.Equal(t, 5*time.Second, audit.config.Timeout)
	assert.Equal(t, "secret", audit.config.Headers["X-Api-Key"])

	output, err := caps[1].Invoke(context.Background(), types.CapabilityInput{Message: "Sports betting promo"})
	require.NoError(t, err)
	assert.Equal(t, types.PolicyRejected, output.Decision)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"invalid yaml", "capabilities: [\n"},
		{"unknown type", "capabilities:\n  - name: x\n    type: grpc\n"},
		{"duplicate", "capabilities:\n  - name: x\n  - name: x\n"},
		{"http without url", "capabilities:\n  - name: x\n    type: http\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc), nil)
			assert.True(t, errors.IsType(err, errors.ErrorTypeValidation), "got %v", err)
		})
	}
}

func TestRegister(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capabilities.yaml")
	require.NoError(t, os.WriteFile(path, []byte(definitions), 0o600))

	registry := capability.NewRegistry()
	names, err := Register(registry, path, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"context", "policy", "audit"}, names)
	assert.Equal(t, []string{"audit", "context", "policy"}, registry.Names())

	_, err = Register(capability.NewRegistry(), filepath.Join(t.TempDir(), "missing.yaml"), nil)
	assert.True(t, errors.IsNotFound(err))
}
