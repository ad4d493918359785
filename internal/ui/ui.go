// Package ui defines the boundary between the core (this module) and the
// interactive console front-end, which spec.md §1 scopes out of the core
// as an external collaborator. Nothing in this package implements a
// line editor or command parser; it only names the types the core
// consumes and exposes.
package ui

import (
	"fmt"

	"github.com/distribuidos-Coffee-Shop-Analysis/coordinator-service/internal/membership"
)

// UserCommand is one line of input from the interactive front-end.
type UserCommand struct {
	Line string
}

// FormatEvent renders a membership.SystemEvent the way spec.md §6
// describes: "[SISTEMA] ...", "[ELEICAO] ...", "[ALERTA] ..." and a
// plain line for chat.
func FormatEvent(ev membership.SystemEvent) string {
	if ev.Kind == membership.EventChat {
		return ev.Text
	}
	return fmt.Sprintf("[%s] %s", ev.Kind, ev.Text)
}

// FormatChatLine renders an inbound chat frame for display. The sender's
// own lines are echoed with "Você" per spec.md §6; everyone else's with
// their display name.
func FormatChatLine(name string, id membership.Id, text string, self bool) string {
	label := name
	if self {
		label = "Você"
	}
	return fmt.Sprintf("%s [%d]: %s", label, int(id), text)
}

// FormatListEntry renders a single LIST row: "<name> [<id>] -> <addr>".
func FormatListEntry(name string, id membership.Id, addr membership.Addr) string {
	return fmt.Sprintf("%s [%d] -> %s", name, int(id), addr)
}
