// Package topology describes the static layout of the
// cluster: the latency table between hosts, the mapping
// between member client endpoints and cluster identities,
// and the host that each forecast node id lives on.
package topology

import (
	"errors"
	"fmt"
	"io/ioutil"
	"net"
	"sort"

	yaml "gopkg.in/yaml.v2"
)

var (
	// ErrMalformedTopology is returned when a topology file
	// cannot be parsed or violates one of its invariants
	ErrMalformedTopology = errors.New("malformed topology")
)

// LatencyEntry is one symmetric latency entry
type LatencyEntry struct {
	A   string  `yaml:"a"`
	B   string  `yaml:"b"`
	RTT float64 `yaml:"rtt"`
}

// Definition is the on-disk form of a topology
type Definition struct {
	Sentinel  float64           `yaml:"sentinel"`
	Latencies []LatencyEntry    `yaml:"latencies"`
	Members   map[string]string `yaml:"members"`
	Nodes     map[string]string `yaml:"nodes"`
}

// Topology is the static, read-only cluster layout
type Topology struct {
	latencies          *LatencyTable
	endpointToIdentity map[string]string
	identityToEndpoint map[string]string
	nodeToHost         map[string]string
}

// Load reads and parses a YAML topology file
func Load(path string) (*Topology, error) {
	data, err := ioutil.ReadFile(path)

	if err != nil {
		return nil, fmt.Errorf("could not read topology file %s: %w", path, err)
	}

	return Parse(data)
}

// Parse parses a YAML topology
func Parse(data []byte) (*Topology, error) {
	var definition Definition

	if err := yaml.UnmarshalStrict(data, &definition); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrMalformedTopology, err.Error())
	}

	return New(definition)
}

// New builds a Topology from a definition. Identities must be
// unique so that the endpoint mapping stays bidirectional.
func New(definition Definition) (*Topology, error) {
	sentinel := definition.Sentinel

	if sentinel <= 0 {
		sentinel = DefaultSentinel
	}

	topology := &Topology{
		latencies:          NewLatencyTable(sentinel),
		endpointToIdentity: make(map[string]string, len(definition.Members)),
		identityToEndpoint: make(map[string]string, len(definition.Members)),
		nodeToHost:         make(map[string]string, len(definition.Nodes)),
	}

	for i, latency := range definition.Latencies {
		if latency.A == "" || latency.B == "" {
			return nil, fmt.Errorf("%w: latency entry %d is missing an address", ErrMalformedTopology, i)
		}

		if latency.RTT < 0 {
			return nil, fmt.Errorf("%w: latency entry %d has a negative rtt", ErrMalformedTopology, i)
		}

		topology.latencies.Set(latency.A, latency.B, latency.RTT)
	}

	for endpoint, identity := range definition.Members {
		if _, _, err := net.SplitHostPort(endpoint); err != nil {
			return nil, fmt.Errorf("%w: member endpoint %q must be host:port", ErrMalformedTopology, endpoint)
		}

		if identity == "" {
			return nil, fmt.Errorf("%w: member endpoint %q has an empty identity", ErrMalformedTopology, endpoint)
		}

		if other, ok := topology.identityToEndpoint[identity]; ok {
			return nil, fmt.Errorf("%w: identity %s is used by both %s and %s", ErrMalformedTopology, identity, other, endpoint)
		}

		topology.endpointToIdentity[endpoint] = identity
		topology.identityToEndpoint[identity] = endpoint
	}

	for node, host := range definition.Nodes {
		if host == "" {
			return nil, fmt.Errorf("%w: node %s has an empty host", ErrMalformedTopology, node)
		}

		topology.nodeToHost[node] = host
	}

	return topology, nil
}

// Latencies returns the latency table
func (topology *Topology) Latencies() *LatencyTable {
	return topology.latencies
}

// Identity resolves a member client endpoint (host:port)
// to its cluster identity.
func (topology *Topology) Identity(endpoint string) (string, bool) {
	identity, ok := topology.endpointToIdentity[endpoint]

	return identity, ok
}

// MemberEndpoints returns every member client endpoint in
// sorted order
func (topology *Topology) MemberEndpoints() []string {
	endpoints := make([]string, 0, len(topology.endpointToIdentity))

	for endpoint := range topology.endpointToIdentity {
		endpoints = append(endpoints, endpoint)
	}

	sort.Strings(endpoints)

	return endpoints
}

// Endpoint resolves a cluster identity to its member
// client endpoint.
func (topology *Topology) Endpoint(identity string) (string, bool) {
	endpoint, ok := topology.identityToEndpoint[identity]

	return endpoint, ok
}

// HostOf resolves a forecast node id to the host it runs on.
// Explicit node entries win. Otherwise a node id that is
// also a member identity resolves to its endpoint's host.
func (topology *Topology) HostOf(node string) (string, bool) {
	if host, ok := topology.nodeToHost[node]; ok {
		return host, true
	}

	endpoint, ok := topology.identityToEndpoint[node]

	if !ok {
		return "", false
	}

	host, _, err := net.SplitHostPort(endpoint)

	if err != nil {
		return "", false
	}

	return host, true
}
