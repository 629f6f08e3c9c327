package tools

import (
	"encoding/json"
	"fmt"
)

// baseInstruction nudges the model to keep talking after a silent action.
const baseInstruction = "Action completed. Now YOU MUST generate a natural verbal response to the user's last message or this action."

// Result is the acknowledgement sent back to the model for one call.
type Result struct {
	Status      string `json:"result"`
	Instruction string `json:"system_instruction,omitempty"`

	// IsError marks acks for calls that could not be honored.
	IsError bool `json:"-"`
}

// Content encodes the result as the tool_result payload.
func (r Result) Content() string {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Sprintf(`{"result":%q}`, r.Status)
	}
	return string(data)
}

func ok(status, instruction string) Result {
	return Result{Status: status, Instruction: instruction}
}

// neutral acknowledges a call whose side effect did not happen.
func neutral(status string) Result {
	return Result{Status: status}
}

func failed(status string) Result {
	return Result{Status: status, IsError: true}
}
