package ui

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/distribuidos-Coffee-Shop-Analysis/coordinator-service/internal/membership"
)

func TestFormatEventPrefixesNonChatKinds(t *testing.T) {
	got := FormatEvent(membership.SystemEvent{Kind: membership.EventSystem, Text: "peer added"})
	assert.Equal(t, "[SISTEMA] peer added", got)
}

func TestFormatEventLeavesChatUnprefixed(t *testing.T) {
	got := FormatEvent(membership.SystemEvent{Kind: membership.EventChat, Text: "Bob [1]: hi"})
	assert.Equal(t, "Bob [1]: hi", got)
}

func TestFormatChatLineUsesSelfLabelForOwnMessages(t *testing.T) {
	got := FormatChatLine("Alice", 0, "hello", true)
	assert.Equal(t, "Você [0]: hello", got)
}

func TestFormatChatLineUsesNameForOthers(t *testing.T) {
	got := FormatChatLine("Bob", 1, "hi there", false)
	assert.Equal(t, "Bob [1]: hi there", got)
}

func TestFormatListEntry(t *testing.T) {
	got := FormatListEntry("Carol", 2, membership.Addr{Host: "127.0.0.1", Port: 9002})
	assert.Equal(t, "Carol [2] -> 127.0.0.1:9002", got)
}
