package tui

import (
	"strings"

	"github.com/charmbracelet/bubbles/key"
)

type keyMap struct {
	SwitchMode key.Binding
	Translate  key.Binding
	Capture    key.Binding
	Submit     key.Binding
	Quit       key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		SwitchMode: key.NewBinding(
			key.WithKeys("tab"),
			key.WithHelp("tab", "switch mode"),
		),
		Translate: key.NewBinding(
			key.WithKeys("ctrl+t"),
			key.WithHelp("ctrl+t", "toggle translate"),
		),
		Capture: key.NewBinding(
			key.WithKeys("f9"),
			key.WithHelp("F9", "capture"),
		),
		Submit: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "submit"),
		),
		Quit: key.NewBinding(
			key.WithKeys("ctrl+c", "esc"),
			key.WithHelp("esc", "quit"),
		),
	}
}

func renderKeyHelp(binding key.Binding) string {
	return Help.Render("[") + Key.Render(binding.Help().Key) + Help.Render("] "+binding.Help().Desc)
}

func renderHelpLine(bindings ...key.Binding) string {
	parts := make([]string, 0, len(bindings))
	for _, b := range bindings {
		parts = append(parts, renderKeyHelp(b))
	}
	return strings.Join(parts, "  ")
}
