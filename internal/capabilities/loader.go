package capabilities

import (
	"fmt"
	"net/http"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/NikhilSetiya/governance-orchestrator/pkg/capability"
	"github.com/NikhilSetiya/governance-orchestrator/pkg/errors"
)

// Capability definition types
const (
	TypeRules = "rules"
	TypeHTTP  = "http"
)

// definitionFile is the YAML layout of a capabilities file:
//
//	capabilities:
//	  - name: policy
//	    type: rules
//	    default: {decision: approved, confidence: 0.9}
//	    rules:
//	      - name: gambling
//	        terms: [casino, betting]
//	        decision: rejected
//	  - name: audit
//	    type: http
//	    url: http://audit:8080/invoke
//	    timeout: 5s
type definitionFile struct {
	Capabilities []yaml.Node `yaml:"capabilities"`
}

type definitionHeader struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
}

// Parse builds capabilities from a definitions document. client is shared by
// every HTTP capability; nil gives each its own.
func Parse(data []byte, client *http.Client) ([]capability.Capability, error) {
	var file definitionFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, errors.NewValidationError("invalid capabilities file").WithCause(err)
	}

	seen := make(map[string]bool, len(file.Capabilities))
	out := make([]capability.Capability, 0, len(file.Capabilities))
	for i := range file.Capabilities {
		node := &file.Capabilities[i]

		var header definitionHeader
		if err := node.Decode(&header); err != nil {
			return nil, errors.NewValidationError(fmt.Sprintf("invalid capability definition at line %d", node.Line)).WithCause(err)
		}
		if seen[header.Name] {
			return nil, errors.NewValidationError(fmt.Sprintf("capability %s is defined twice", header.Name))
		}
		seen[header.Name] = true

		c, err := build(node, header, client)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func build(node *yaml.Node, header definitionHeader, client *http.Client) (capability.Capability, error) {
	switch header.Type {
	case TypeRules, "":
		var config RulesConfig
		if err := node.Decode(&config); err != nil {
			return nil, errors.NewValidationError(fmt.Sprintf("invalid rules capability %s", header.Name)).WithCause(err)
		}
		return NewRulesCapability(config)
	case TypeHTTP:
		var config HTTPConfig
		if err := node.Decode(&config); err != nil {
			return nil, errors.NewValidationError(fmt.Sprintf("invalid http capability %s", header.Name)).WithCause(err)
		}
		return NewHTTPCapability(config, client)
	default:
		return nil, errors.NewValidationError(fmt.Sprintf("capability %s has unknown type %q", header.Name, header.Type))
	}
}

// LoadFile reads and parses a capabilities file
func LoadFile(path string, client *http.Client) ([]capability.Capability, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.NewNotFoundError("capabilities file").WithCause(err).WithDetail("path", path)
	}
	return Parse(data, client)
}

// Register loads path and adds every capability to registry
func Register(registry *capability.Registry, path string, client *http.Client) ([]string, error) {
	caps, err := LoadFile(path, client)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(caps))
	for _, c := range caps {
		if err := registry.Register(c); err != nil {
			return names, err
		}
		names = append(names, c.Name())
	}
	return names, nil
}
