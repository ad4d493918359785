// Package config assembles a peer's startup configuration, per spec.md
// §6: an interactive stdin prompt sequence for selfName, selfPort, and
// an optional bootstrap coordinator port, plus an optional static seed
// roster file. It keeps the teacher's "typed config struct assembled by
// small loader functions, fatal on unrecoverable error" shape
// (cmd/coordinator/config.go's loadWorkersFromCompose) but adapts the
// loader to this spec's YAML shape instead of a docker-compose file.
package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/distribuidos-Coffee-Shop-Analysis/coordinator-service/internal/membership"
)

// Peer is the fully-resolved startup configuration for one process.
type Peer struct {
	SelfName  string
	SelfHost  string
	SelfPort  uint16
	Bootstrap *membership.Addr
}

// SeedRoster is an optional static roster file letting an operator
// pre-populate members/idOf/nameOf for local multi-peer test runs
// without typing a bootstrap port at every prompt, the direct analogue
// of the teacher's loadWorkersFromCompose.
type SeedRoster struct {
	Peers []SeedPeer `yaml:"peers"`
}

// SeedPeer is one entry in a SeedRoster.
type SeedPeer struct {
	Host string `yaml:"host"`
	Port uint16 `yaml:"port"`
	Id   int    `yaml:"id"`
	Name string `yaml:"name"`
}

// LoadSeedRoster reads and parses a YAML seed-roster file.
func LoadSeedRoster(path string) (*SeedRoster, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed roster %s: %w", path, err)
	}
	var roster SeedRoster
	if err := yaml.Unmarshal(data, &roster); err != nil {
		return nil, fmt.Errorf("parse seed roster %s: %w", path, err)
	}
	return &roster, nil
}

// ApplySeedRoster installs every entry of roster into store via
// Store.Seed, pre-populating members/idOf/nameOf ahead of any live
// JOIN/UPDATE traffic. Call it before Peer.Start: when the roster
// includes this peer's own address, Start derives the role from the
// seeded view and skips the Join Protocol. When it does not, Start runs
// the Join Protocol, which replaces the seeded members.
func ApplySeedRoster(store *membership.Store, roster *SeedRoster) {
	for _, p := range roster.Peers {
		store.Seed(membership.Addr{Host: p.Host, Port: p.Port}, membership.Id(p.Id), p.Name)
	}
}

// PromptPeer runs the interactive stdin prompt sequence from spec.md §6:
// selfName (non-empty token), selfPort (0..65535, bindable on loopback),
// and optionally a bootstrap coordinator port. Host is hard-coded to the
// loopback, per spec.md §6: "Host is hard-coded to the loopback in the
// reference design."
func PromptPeer(in io.Reader, out io.Writer) (Peer, error) {
	reader := bufio.NewReader(in)

	name, err := promptNonEmpty(reader, out, "Display name: ")
	if err != nil {
		return Peer{}, err
	}

	port, err := promptPort(reader, out, "Listen port: ")
	if err != nil {
		return Peer{}, err
	}

	cfg := Peer{SelfName: name, SelfHost: "127.0.0.1", SelfPort: port}

	fmt.Fprint(out, "Join an existing coordinator? (y/n): ")
	answer, err := reader.ReadString('\n')
	if err != nil && err != io.EOF {
		return Peer{}, fmt.Errorf("read bootstrap answer: %w", err)
	}
	answer = strings.TrimSpace(strings.ToLower(answer))
	if answer == "y" || answer == "s" {
		bootPort, err := promptPort(reader, out, "Coordinator port: ")
		if err != nil {
			return Peer{}, err
		}
		cfg.Bootstrap = &membership.Addr{Host: "127.0.0.1", Port: bootPort}
	}

	return cfg, nil
}

func promptNonEmpty(reader *bufio.Reader, out io.Writer, prompt string) (string, error) {
	for {
		fmt.Fprint(out, prompt)
		line, err := reader.ReadString('\n')
		if err != nil && err != io.EOF {
			return "", fmt.Errorf("read input: %w", err)
		}
		line = strings.TrimSpace(line)
		if line != "" {
			return line, nil
		}
		if err == io.EOF {
			return "", fmt.Errorf("unexpected end of input")
		}
	}
}

func promptPort(reader *bufio.Reader, out io.Writer, prompt string) (uint16, error) {
	for {
		fmt.Fprint(out, prompt)
		line, err := reader.ReadString('\n')
		if err != nil && err != io.EOF {
			return 0, fmt.Errorf("read input: %w", err)
		}
		line = strings.TrimSpace(line)
		n, parseErr := strconv.ParseUint(line, 10, 16)
		if parseErr == nil {
			return uint16(n), nil
		}
		fmt.Fprintln(out, "please enter an integer in 0..65535")
		if err == io.EOF {
			return 0, fmt.Errorf("unexpected end of input")
		}
	}
}
