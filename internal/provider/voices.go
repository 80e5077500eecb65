package provider

import "github.com/book-expert/audio-bible/internal/core"

var catalogue = map[core.ProviderID][]Voice{
	core.ProviderGemini: {
		{ID: "Kore", Name: "Kore (Female)"},
		{ID: "Puck", Name: "Puck (Male)"},
		{ID: "Charon", Name: "Charon (Male)"},
		{ID: "Zephyr", Name: "Zephyr (Female)"},
		{ID: "Fenrir", Name: "Fenrir (Male)"},
	},
	core.ProviderElevenLabs: {
		{ID: "21m00Tcm4TlvDq8ikWAM", Name: "Rachel (Calm, American)"},
		{ID: "2EiwWnXFnvU5JabPnv8n", Name: "Clyde (Authoritative, American)"},
		{ID: "5Q0t7uMcjvnagumLfvZi", Name: "James (Older, British)"},
		{ID: "CYw3kZ02Hs0563khs1Fj", Name: "Gigi (Child-like, American)"},
		{ID: "AZnzlk1XvdvUeBnXmlld", Name: "Freya (Youthful, American)"},
	},
	core.ProviderOpenAI: {
		{ID: "alloy", Name: "Alloy"},
		{ID: "ash", Name: "Ash"},
		{ID: "coral", Name: "Coral"},
		{ID: "echo", Name: "Echo"},
		{ID: "fable", Name: "Fable"},
		{ID: "nova", Name: "Nova"},
		{ID: "onyx", Name: "Onyx"},
		{ID: "sage", Name: "Sage"},
		{ID: "shimmer", Name: "Shimmer"},
	},
	core.ProviderHume: {
		{ID: "mock-hume-1", Name: "Empathetic Voice 1 (Mock)"},
		{ID: "mock-hume-2", Name: "Calm Voice (Mock)"},
	},
}

// Catalogue returns a copy of the built-in voices for id.
func Catalogue(id core.ProviderID) []Voice {
	return append([]Voice(nil), catalogue[id]...)
}
