package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"
)

// ============================================================================
// gesture-ctl - command-line IPC client for gesturebrainz
// ============================================================================
//
// Usage:
//   gesture-ctl snapshot
//   gesture-ctl threshold 15
//   gesture-ctl sensitivity 60 25
//   gesture-ctl reset
//   gesture-ctl service
//
// Options:
//   -socket PATH    Unix domain socket path (default: /tmp/gesturebrainz.sock)
// ============================================================================

const defaultSocketPath = "/tmp/gesturebrainz.sock"

// Wire types, kept in step with the daemon's IPC protocol.

type commandEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type setDecoder struct {
	Threshold    *int `json:"threshold,omitempty"`
	Sensitivity1 *int `json:"sensitivity_1,omitempty"`
	Sensitivity2 *int `json:"sensitivity_2,omitempty"`
}

type ipcResponse struct {
	Status string          `json:"status"`
	Error  string          `json:"error,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`
}

func main() {
	socketPath := defaultSocketPath

	args := os.Args[1:]
	if len(args) > 0 && (args[0] == "-socket" || args[0] == "--socket") {
		if len(args) < 2 {
			fail("-socket requires an argument")
		}
		socketPath = args[1]
		args = args[2:]
	}
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	env, err := buildCommand(args)
	if err != nil {
		if errors.Is(err, errHelp) {
			printUsage()
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		printUsage()
		os.Exit(1)
	}

	resp, err := send(socketPath, env)
	if err != nil {
		fail(err.Error())
	}

	if len(resp.Data) > 0 {
		var pretty any
		if err := json.Unmarshal(resp.Data, &pretty); err == nil {
			out, _ := json.MarshalIndent(pretty, "", "  ")
			fmt.Println(string(out))
			return
		}
	}
	fmt.Println("ok")
}

var errHelp = errors.New("help requested")

// buildCommand turns command-line arguments into a request envelope.
func buildCommand(args []string) (commandEnvelope, error) {
	switch args[0] {
	case "snapshot", "status":
		return commandEnvelope{Type: "snapshot"}, nil

	case "reset":
		return commandEnvelope{Type: "reset_decoder"}, nil

	case "service":
		return commandEnvelope{Type: "service"}, nil

	case "threshold":
		if len(args) < 2 {
			return commandEnvelope{}, fmt.Errorf("threshold requires a value (0-255)")
		}
		v, err := strconv.Atoi(args[1])
		if err != nil || v < 0 || v > 255 {
			return commandEnvelope{}, fmt.Errorf("invalid threshold %q", args[1])
		}
		return setDecoderEnvelope(setDecoder{Threshold: &v})

	case "sensitivity":
		if len(args) < 2 {
			return commandEnvelope{}, fmt.Errorf("sensitivity requires one or two values")
		}
		var sd setDecoder
		s1, err := strconv.Atoi(args[1])
		if err != nil || s1 < 0 {
			return commandEnvelope{}, fmt.Errorf("invalid sensitivity_1 %q", args[1])
		}
		sd.Sensitivity1 = &s1
		if len(args) > 2 {
			s2, err := strconv.Atoi(args[2])
			if err != nil || s2 < 0 {
				return commandEnvelope{}, fmt.Errorf("invalid sensitivity_2 %q", args[2])
			}
			sd.Sensitivity2 = &s2
		}
		return setDecoderEnvelope(sd)

	case "help", "-h", "--help":
		return commandEnvelope{}, errHelp

	default:
		return commandEnvelope{}, fmt.Errorf("unknown command: %s", args[0])
	}
}

func setDecoderEnvelope(sd setDecoder) (commandEnvelope, error) {
	data, err := json.Marshal(sd)
	if err != nil {
		return commandEnvelope{}, fmt.Errorf("marshal set_decoder: %w", err)
	}
	return commandEnvelope{Type: "set_decoder", Data: data}, nil
}

func send(socketPath string, env commandEnvelope) (ipcResponse, error) {
	conn, err := net.DialTimeout("unix", socketPath, 2*time.Second)
	if err != nil {
		return ipcResponse{}, fmt.Errorf("connect to %s: %w", socketPath, err)
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(5 * time.Second))

	data, err := json.Marshal(env)
	if err != nil {
		return ipcResponse{}, fmt.Errorf("marshal command: %w", err)
	}
	if _, err := fmt.Fprintf(conn, "%s\n", data); err != nil {
		return ipcResponse{}, fmt.Errorf("send command: %w", err)
	}

	var resp ipcResponse
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return ipcResponse{}, fmt.Errorf("decode response: %w", err)
	}
	if resp.Status == "error" {
		return resp, fmt.Errorf("daemon error: %s", resp.Error)
	}
	return resp, nil
}

func fail(msg string) {
	fmt.Fprintf(os.Stderr, "error: %s\n", msg)
	os.Exit(1)
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `gesture-ctl - control the gesturebrainz daemon via IPC

Usage:
  gesture-ctl [options] <command> [args]

Options:
  -socket PATH    Unix domain socket path (default: %s)

Commands:
  snapshot, status            Print decoder state and counters
  threshold <0-255>           Set the per-channel signal threshold
  sensitivity <s1> [s2]       Set directional (s1) and near/far (s2) sensitivity
  reset                       Discard in-progress recognition state
  service                     Run one interrupt servicing cycle now
  help, -h, --help            Show this help message

Examples:
  gesture-ctl snapshot
  gesture-ctl threshold 20
  gesture-ctl -socket /run/gesturebrainz.sock sensitivity 60 25
`, defaultSocketPath)
}
