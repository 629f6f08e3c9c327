// Package tui defines the IO interface between the turn orchestrator and the
// presentation layer, plus PlainIO (line-oriented terminal) and BufferIO
// (silent capture for tests and headless runs).
package tui

import "github.com/Dev-Umb/wife-generate-game/internal/game"

// IO is the contract between the orchestrator and the UI layer. Every
// method maps to one visual event; the orchestrator never renders.
type IO interface {
	// ReadInput blocks until the user submits a line.
	// Returns ("", io.EOF) when the user quits.
	ReadInput() (string, error)

	// Snapshot receives a deep copy of the session after every change.
	Snapshot(st *game.State)

	// ThinkingStart signals that a narrative stream is being opened.
	ThinkingStart()

	// TextDelta appends a streamed chunk to the message with messageID.
	TextDelta(messageID, delta string)

	// TextDone signals the message with messageID has its final text.
	TextDone(messageID, fullText string)

	// ToolStart and ToolDone bracket one narrative action.
	ToolStart(id, name, params string)
	ToolDone(id, name, result string, isErr bool)

	// Suggestions shows the reply options for the next turn.
	Suggestions(replies []string)

	// SystemMessage displays a notice (e.g. retry progress, session status).
	SystemMessage(text string)

	// Warning displays a non-blocking problem such as a failed save.
	Warning(msg string)

	// Error displays an error with prominent styling.
	Error(msg string)
}
