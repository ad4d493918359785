// Package wire implements the line-oriented wire protocol described in
// spec.md §4.1: whitespace-tokenized ASCII frames, one frame per TCP
// connection, JSON sub-payloads for membership snapshots and id/name
// maps. Parsing is a strict tokenizer — no expression evaluation is ever
// applied to untrusted input, per the REDESIGN FLAGS note about the
// original Python implementation's eval(str((ip, porta))) pattern.
package wire

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/distribuidos-Coffee-Shop-Analysis/coordinator-service/internal/membership"
)

// Verb is one of the closed set of leading tokens recognized by the
// protocol. VerbChat is synthesized locally for anything that doesn't
// match a known verb.
type Verb string

const (
	VerbJoin              Verb = "JOIN"
	VerbUpdate            Verb = "UPDATE"
	VerbMapUpdate         Verb = "MAP_UPDATE"
	VerbHeartbeat         Verb = "HEARTBEAT"
	VerbElection          Verb = "ELECTION"
	VerbCoordinator       Verb = "COORDINATOR"
	VerbStartElection     Verb = "START_ELECTION"
	VerbRemoveCoordinator Verb = "REMOVE_COORDINATOR"
	VerbExit              Verb = "EXIT"
	VerbChat              Verb = "CHAT"
)

// MaxFrameSize bounds a single inbound read, per the REDESIGN FLAGS
// "unbounded reads" item (spec.md §9). The grammar only ever needs to
// carry a membership snapshot or id/name map for a single peer set, so
// this generously covers realistic memberships while bounding worst-case
// memory per connection.
const MaxFrameSize = 4096

// Frame is a parsed inbound or outbound message.
type Frame struct {
	Verb Verb

	// JOIN / EXIT / COORDINATOR
	Addr membership.Addr
	Name string

	// UPDATE
	Members []membership.Addr

	// MAP_UPDATE
	Ids   map[membership.Addr]membership.Id
	Names map[membership.Addr]string

	// HEARTBEAT / REMOVE_COORDINATOR reuse Addr above; ELECTION carries
	// only a sender id.
	SenderId membership.Id

	// Raw chat text, set only for VerbChat.
	Text string
}

// mapUpdatePayload mirrors the wire JSON object
// {"ids": {"(host, port)": id, ...}, "nomes": {"(host, port)": name, ...}}
// The "nomes" key is kept in the original language for wire compatibility
// with the system this protocol was distilled from (spec.md §4.1).
type mapUpdatePayload struct {
	Ids   map[string]int    `json:"ids"`
	Nomes map[string]string `json:"nomes"`
}

// joinReply mirrors {"id": <Id>, "peers": [[host,port], ...]}.
type joinReply struct {
	Id    int        `json:"id"`
	Peers [][2]string `json:"peers"`
}

// Encode renders a Frame to its wire form, a single line with no
// trailing newline (Transport is responsible for connection framing).
func Encode(f Frame) (string, error) {
	switch f.Verb {
	case VerbJoin:
		return fmt.Sprintf("JOIN %s %d %s", f.Addr.Host, f.Addr.Port, f.Name), nil
	case VerbUpdate:
		list := make([][2]interface{}, 0, len(f.Members))
		for _, a := range f.Members {
			list = append(list, [2]interface{}{a.Host, a.Port})
		}
		b, err := json.Marshal(list)
		if err != nil {
			return "", fmt.Errorf("encode UPDATE: %w", err)
		}
		return "UPDATE " + string(b), nil
	case VerbMapUpdate:
		payload := mapUpdatePayload{
			Ids:   make(map[string]int, len(f.Ids)),
			Nomes: make(map[string]string, len(f.Names)),
		}
		for a, id := range f.Ids {
			payload.Ids[AddrKey(a)] = int(id)
		}
		for a, name := range f.Names {
			payload.Nomes[AddrKey(a)] = name
		}
		b, err := json.Marshal(payload)
		if err != nil {
			return "", fmt.Errorf("encode MAP_UPDATE: %w", err)
		}
		return "MAP_UPDATE " + string(b), nil
	case VerbHeartbeat:
		return fmt.Sprintf("HEARTBEAT %s %d", f.Addr.Host, f.Addr.Port), nil
	case VerbElection:
		return fmt.Sprintf("ELECTION %d", int(f.SenderId)), nil
	case VerbCoordinator:
		return fmt.Sprintf("COORDINATOR %s %d %s", f.Addr.Host, f.Addr.Port, f.Name), nil
	case VerbStartElection:
		return "START_ELECTION", nil
	case VerbRemoveCoordinator:
		return fmt.Sprintf("REMOVE_COORDINATOR %s %d", f.Addr.Host, f.Addr.Port), nil
	case VerbExit:
		return fmt.Sprintf("EXIT %s %d %s", f.Addr.Host, f.Addr.Port, f.Name), nil
	case VerbChat:
		return f.Text, nil
	default:
		return "", fmt.Errorf("unknown verb %q", f.Verb)
	}
}

// Parse decodes a single raw line into a Frame. Anything that doesn't
// start with a recognized verb is treated as a chat line, per spec.md
// §4.1: "Anything that does not match a known verb is treated as a user
// chat line".
func Parse(line string) (Frame, error) {
	trimmed := strings.TrimRight(line, "\r\n")
	fields := strings.Fields(trimmed)
	if len(fields) == 0 {
		return Frame{Verb: VerbChat, Text: trimmed}, nil
	}

	switch Verb(fields[0]) {
	case VerbJoin:
		if len(fields) < 4 {
			return Frame{}, fmt.Errorf("malformed JOIN: %q", trimmed)
		}
		port, err := parsePort(fields[2])
		if err != nil {
			return Frame{}, fmt.Errorf("malformed JOIN port: %w", err)
		}
		return Frame{
			Verb: VerbJoin,
			Addr: membership.Addr{Host: fields[1], Port: port},
			Name: strings.Join(fields[3:], " "),
		}, nil

	case VerbUpdate:
		if len(fields) < 2 {
			return Frame{}, fmt.Errorf("malformed UPDATE: %q", trimmed)
		}
		jsonPart := strings.SplitN(trimmed, " ", 2)[1]
		members, err := parseMembersJSON(jsonPart)
		if err != nil {
			return Frame{}, fmt.Errorf("malformed UPDATE payload: %w", err)
		}
		return Frame{Verb: VerbUpdate, Members: members}, nil

	case VerbMapUpdate:
		if len(fields) < 2 {
			return Frame{}, fmt.Errorf("malformed MAP_UPDATE: %q", trimmed)
		}
		jsonPart := strings.SplitN(trimmed, " ", 2)[1]
		var payload mapUpdatePayload
		if err := json.Unmarshal([]byte(jsonPart), &payload); err != nil {
			return Frame{}, fmt.Errorf("malformed MAP_UPDATE payload: %w", err)
		}
		ids := make(map[membership.Addr]membership.Id, len(payload.Ids))
		for k, v := range payload.Ids {
			addr, err := ParseAddrKey(k)
			if err != nil {
				return Frame{}, fmt.Errorf("malformed MAP_UPDATE id key %q: %w", k, err)
			}
			ids[addr] = membership.Id(v)
		}
		names := make(map[membership.Addr]string, len(payload.Nomes))
		for k, v := range payload.Nomes {
			addr, err := ParseAddrKey(k)
			if err != nil {
				return Frame{}, fmt.Errorf("malformed MAP_UPDATE name key %q: %w", k, err)
			}
			names[addr] = v
		}
		return Frame{Verb: VerbMapUpdate, Ids: ids, Names: names}, nil

	case VerbHeartbeat:
		if len(fields) < 3 {
			return Frame{}, fmt.Errorf("malformed HEARTBEAT: %q", trimmed)
		}
		port, err := parsePort(fields[2])
		if err != nil {
			return Frame{}, fmt.Errorf("malformed HEARTBEAT port: %w", err)
		}
		return Frame{Verb: VerbHeartbeat, Addr: membership.Addr{Host: fields[1], Port: port}}, nil

	case VerbElection:
		if len(fields) < 2 {
			return Frame{}, fmt.Errorf("malformed ELECTION: %q", trimmed)
		}
		id, err := strconv.Atoi(fields[1])
		if err != nil {
			return Frame{}, fmt.Errorf("malformed ELECTION id: %w", err)
		}
		return Frame{Verb: VerbElection, SenderId: membership.Id(id)}, nil

	case VerbCoordinator:
		if len(fields) < 4 {
			return Frame{}, fmt.Errorf("malformed COORDINATOR: %q", trimmed)
		}
		port, err := parsePort(fields[2])
		if err != nil {
			return Frame{}, fmt.Errorf("malformed COORDINATOR port: %w", err)
		}
		return Frame{
			Verb: VerbCoordinator,
			Addr: membership.Addr{Host: fields[1], Port: port},
			Name: strings.Join(fields[3:], " "),
		}, nil

	case VerbStartElection:
		return Frame{Verb: VerbStartElection}, nil

	case VerbRemoveCoordinator:
		if len(fields) < 3 {
			return Frame{}, fmt.Errorf("malformed REMOVE_COORDINATOR: %q", trimmed)
		}
		port, err := parsePort(fields[2])
		if err != nil {
			return Frame{}, fmt.Errorf("malformed REMOVE_COORDINATOR port: %w", err)
		}
		return Frame{Verb: VerbRemoveCoordinator, Addr: membership.Addr{Host: fields[1], Port: port}}, nil

	case VerbExit:
		if len(fields) < 4 {
			return Frame{}, fmt.Errorf("malformed EXIT: %q", trimmed)
		}
		port, err := parsePort(fields[2])
		if err != nil {
			return Frame{}, fmt.Errorf("malformed EXIT port: %w", err)
		}
		return Frame{
			Verb: VerbExit,
			Addr: membership.Addr{Host: fields[1], Port: port},
			Name: strings.Join(fields[3:], " "),
		}, nil

	default:
		return Frame{Verb: VerbChat, Text: trimmed}, nil
	}
}

func parsePort(s string) (uint16, error) {
	n, err := strconv.ParseUint(s, 10, 16)
	if err != nil {
		return 0, err
	}
	return uint16(n), nil
}

func parseMembersJSON(raw string) ([]membership.Addr, error) {
	var list [][2]interface{}
	if err := json.Unmarshal([]byte(raw), &list); err != nil {
		return nil, err
	}
	out := make([]membership.Addr, 0, len(list))
	for _, pair := range list {
		host, ok := pair[0].(string)
		if !ok {
			return nil, fmt.Errorf("non-string host in member tuple %v", pair)
		}
		portF, ok := pair[1].(float64)
		if !ok {
			return nil, fmt.Errorf("non-numeric port in member tuple %v", pair)
		}
		out = append(out, membership.Addr{Host: host, Port: uint16(portF)})
	}
	return out, nil
}

// EncodeJoinReply renders the JOIN response JSON body:
// {"id": <Id>, "peers": [[host,port], ...]}
func EncodeJoinReply(id membership.Id, peers []membership.Addr) ([]byte, error) {
	reply := joinReply{Id: int(id)}
	reply.Peers = make([][2]string, 0, len(peers))
	for _, p := range peers {
		reply.Peers = append(reply.Peers, [2]string{p.Host, strconv.Itoa(int(p.Port))})
	}
	return json.Marshal(reply)
}

// ParseJoinReply parses the JOIN response JSON body back into an id and
// peer list.
func ParseJoinReply(raw []byte) (membership.Id, []membership.Addr, error) {
	var loose struct {
		Id    int               `json:"id"`
		Peers []json.RawMessage `json:"peers"`
	}
	if err := json.Unmarshal(raw, &loose); err != nil {
		return 0, nil, fmt.Errorf("parse JOIN reply: %w", err)
	}
	peers := make([]membership.Addr, 0, len(loose.Peers))
	for _, raw := range loose.Peers {
		var pair [2]interface{}
		if err := json.Unmarshal(raw, &pair); err != nil {
			return 0, nil, fmt.Errorf("parse JOIN reply peer: %w", err)
		}
		host, ok := pair[0].(string)
		if !ok {
			return 0, nil, fmt.Errorf("non-string host in JOIN reply peer %v", pair)
		}
		var port uint16
		switch v := pair[1].(type) {
		case float64:
			port = uint16(v)
		case string:
			p, err := strconv.ParseUint(v, 10, 16)
			if err != nil {
				return 0, nil, fmt.Errorf("malformed JOIN reply peer port: %w", err)
			}
			port = uint16(p)
		default:
			return 0, nil, fmt.Errorf("unsupported port type in JOIN reply peer %v", pair)
		}
		peers = append(peers, membership.Addr{Host: host, Port: port})
	}
	return membership.Id(loose.Id), peers, nil
}

// AddrKey renders addr in the original protocol's "(host, port)" key
// shape, used as a MAP_UPDATE JSON object key for wire compatibility.
func AddrKey(a membership.Addr) string {
	return fmt.Sprintf("(%s, %d)", a.Host, a.Port)
}

// ParseAddrKey strictly parses a "(host, port)" key back into an Addr.
// It never evaluates the string as code (REDESIGN FLAGS, spec.md §9):
// it only accepts the shape produced by AddrKey, optionally with the
// host wrapped in single or double quotes.
func ParseAddrKey(key string) (membership.Addr, error) {
	s := strings.TrimSpace(key)
	if !strings.HasPrefix(s, "(") || !strings.HasSuffix(s, ")") {
		return membership.Addr{}, fmt.Errorf("not a (host, port) key: %q", key)
	}
	inner := s[1 : len(s)-1]
	parts := strings.SplitN(inner, ",", 2)
	if len(parts) != 2 {
		return membership.Addr{}, fmt.Errorf("not a (host, port) key: %q", key)
	}
	host := strings.Trim(strings.TrimSpace(parts[0]), `'"`)
	portStr := strings.TrimSpace(parts[1])
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return membership.Addr{}, fmt.Errorf("not a (host, port) key: %q: %w", key, err)
	}
	if host == "" {
		return membership.Addr{}, fmt.Errorf("empty host in key: %q", key)
	}
	return membership.Addr{Host: host, Port: uint16(port)}, nil
}

// ReservedVerbs is the set of leading tokens the UI collaborator must
// reject locally as reserved words, per spec.md §6.
var ReservedVerbs = []string{
	string(VerbJoin), string(VerbUpdate), string(VerbElection),
	string(VerbCoordinator), string(VerbHeartbeat), string(VerbExit),
	string(VerbMapUpdate), string(VerbRemoveCoordinator), string(VerbStartElection),
}

// IsReserved reports whether the first whitespace-delimited token of line
// is a reserved protocol verb.
func IsReserved(line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}
	first := fields[0]
	for _, v := range ReservedVerbs {
		if first == v {
			return true
		}
	}
	return false
}
