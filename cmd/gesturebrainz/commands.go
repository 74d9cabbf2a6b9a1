package main

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ============================================================================
// Commands
// ============================================================================
// Commands are requests from IPC and WS clients. Only the daemon loop acts on
// them, so the sensor session is never touched from another goroutine.
// ============================================================================

// Command is a marker interface for daemon commands.
type Command interface {
	commandMarker()
}

// SetDecoder updates the decoder tuning knobs. Nil fields are left unchanged.
type SetDecoder struct {
	Threshold    *int `json:"threshold,omitempty"`
	Sensitivity1 *int `json:"sensitivity_1,omitempty"`
	Sensitivity2 *int `json:"sensitivity_2,omitempty"`
}

func (SetDecoder) commandMarker() {}

// Validate reports whether every set field is in range.
func (c SetDecoder) Validate() error {
	if c.Threshold == nil && c.Sensitivity1 == nil && c.Sensitivity2 == nil {
		return errors.New("set_decoder: no fields set")
	}
	if c.Threshold != nil && (*c.Threshold < 0 || *c.Threshold > 255) {
		return fmt.Errorf("set_decoder: threshold %d not in 0..255", *c.Threshold)
	}
	if c.Sensitivity1 != nil && *c.Sensitivity1 < 0 {
		return fmt.Errorf("set_decoder: sensitivity_1 %d must be >= 0", *c.Sensitivity1)
	}
	if c.Sensitivity2 != nil && *c.Sensitivity2 < 0 {
		return fmt.Errorf("set_decoder: sensitivity_2 %d must be >= 0", *c.Sensitivity2)
	}
	return nil
}

// ResetDecoder discards the recognition state and any pending gestures.
type ResetDecoder struct{}

func (ResetDecoder) commandMarker() {}

// ServiceNow runs one interrupt servicing cycle without waiting for the line.
type ServiceNow struct{}

func (ServiceNow) commandMarker() {}

// RequestSnapshot asks the daemon loop for a copy of its decoder state.
// Reply must be buffered; the daemon never blocks on it.
type RequestSnapshot struct {
	Reply chan<- DecoderSnapshot
}

func (RequestSnapshot) commandMarker() {}

// ============================================================================
// JSON envelope
// ============================================================================

// CommandEnvelope wraps a command with a type discriminator.
type CommandEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

const (
	cmdTypeSetDecoder   = "set_decoder"
	cmdTypeResetDecoder = "reset_decoder"
	cmdTypeService      = "service"
	cmdTypeSnapshot     = "snapshot"
)

// UnmarshalCommand decodes a JSON envelope into a concrete Command.
// "snapshot" decodes to a RequestSnapshot without a reply channel; the
// caller attaches one.
func UnmarshalCommand(data []byte) (Command, error) {
	var env CommandEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("unmarshal envelope: %w", err)
	}

	switch env.Type {
	case cmdTypeSetDecoder:
		var c SetDecoder
		if len(env.Data) == 0 {
			return nil, errors.New("unmarshal SetDecoder: missing data")
		}
		if err := json.Unmarshal(env.Data, &c); err != nil {
			return nil, fmt.Errorf("unmarshal SetDecoder: %w", err)
		}
		return c, nil

	case cmdTypeResetDecoder:
		return ResetDecoder{}, nil

	case cmdTypeService:
		return ServiceNow{}, nil

	case cmdTypeSnapshot:
		return RequestSnapshot{}, nil

	case "":
		return nil, errors.New("missing command type")

	default:
		return nil, fmt.Errorf("unknown command type: %s", env.Type)
	}
}

// MarshalCommand encodes c into a JSON envelope.
func MarshalCommand(c Command) ([]byte, error) {
	var env CommandEnvelope

	switch c := c.(type) {
	case SetDecoder:
		env.Type = cmdTypeSetDecoder
		data, err := json.Marshal(c)
		if err != nil {
			return nil, fmt.Errorf("marshal SetDecoder: %w", err)
		}
		env.Data = data

	case ResetDecoder:
		env.Type = cmdTypeResetDecoder

	case ServiceNow:
		env.Type = cmdTypeService

	case RequestSnapshot:
		env.Type = cmdTypeSnapshot

	default:
		return nil, fmt.Errorf("unknown command type: %T", c)
	}

	return json.Marshal(env)
}
