package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strings"
	"time"
)

// ============================================================================
// IPC Server - Unix Domain Socket Interface
// ============================================================================
// Line-delimited JSON:
//   - client sends {"type": "set_decoder", "data": {...}}
//   - server replies {"status": "ok"} or {"status": "error", "error": "msg"}
//
// "snapshot" replies carry the decoder state in "data".
// ============================================================================

// IPCResponse is the reply to one IPC request line.
type IPCResponse struct {
	Status string           `json:"status"`          // "ok" or "error"
	Error  string           `json:"error,omitempty"` // set when status == "error"
	Data   *DecoderSnapshot `json:"data,omitempty"`  // set for snapshot requests
}

// runIPCServer serves the socket until ctx is canceled.
func runIPCServer(ctx context.Context, socketPath string, commands chan<- Command, logger *slog.Logger) error {
	if err := os.RemoveAll(socketPath); err != nil {
		return fmt.Errorf("remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", socketPath, err)
	}
	defer listener.Close()
	defer os.Remove(socketPath)

	if err := os.Chmod(socketPath, 0o660); err != nil {
		return fmt.Errorf("chmod socket: %w", err)
	}

	logger.Info("IPC listening", "socket", socketPath)

	// Closing the listener unblocks Accept.
	go func() {
		<-ctx.Done()
		_ = listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				logger.Debug("IPC listener closed")
				return nil
			}
			logger.Error("IPC accept error", "error", err)
			continue
		}
		go handleIPCConnection(ctx, conn, commands, logger)
	}
}

// handleIPCConnection serves requests from one client until it disconnects.
func handleIPCConnection(ctx context.Context, conn net.Conn, commands chan<- Command, logger *slog.Logger) {
	defer conn.Close()

	logger.Debug("IPC connection", "remote_addr", conn.RemoteAddr())

	scanner := bufio.NewScanner(conn)
	encoder := json.NewEncoder(conn)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		logger.Debug("IPC received", "line", line)

		resp := handleIPCLine(ctx, []byte(line), commands)
		if err := encoder.Encode(resp); err != nil {
			logger.Error("IPC failed to send response", "error", err)
			return
		}
	}

	logger.Debug("IPC connection closed")
}

func handleIPCLine(ctx context.Context, line []byte, commands chan<- Command) IPCResponse {
	cmd, err := UnmarshalCommand(line)
	if err != nil {
		return ipcError(fmt.Errorf("parse command: %w", err))
	}

	switch c := cmd.(type) {
	case RequestSnapshot:
		snap, err := requestSnapshot(ctx, commands)
		if err != nil {
			return ipcError(fmt.Errorf("snapshot: %w", err))
		}
		return IPCResponse{Status: "ok", Data: &snap}

	case SetDecoder:
		if err := c.Validate(); err != nil {
			return ipcError(err)
		}
	}

	select {
	case commands <- cmd:
		return IPCResponse{Status: "ok"}
	default:
		return ipcError(errors.New("command queue full"))
	}
}

func ipcError(err error) IPCResponse {
	return IPCResponse{Status: "error", Error: err.Error()}
}

// ============================================================================
// IPC client
// ============================================================================

// SendIPCCommand sends cmd to the daemon and returns its reply.
func SendIPCCommand(socketPath string, cmd Command, timeout time.Duration) (IPCResponse, error) {
	conn, err := net.DialTimeout("unix", socketPath, timeout)
	if err != nil {
		return IPCResponse{}, fmt.Errorf("connect to %s: %w", socketPath, err)
	}
	defer conn.Close()

	if timeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(timeout))
	}

	data, err := MarshalCommand(cmd)
	if err != nil {
		return IPCResponse{}, fmt.Errorf("marshal command: %w", err)
	}
	if _, err := fmt.Fprintf(conn, "%s\n", data); err != nil {
		return IPCResponse{}, fmt.Errorf("send command: %w", err)
	}

	var resp IPCResponse
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return IPCResponse{}, fmt.Errorf("decode response: %w", err)
	}
	if resp.Status != "ok" {
		return resp, fmt.Errorf("ipc error: %s", resp.Error)
	}
	return resp, nil
}
