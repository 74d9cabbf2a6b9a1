package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/url"
	"os"
	"os/signal"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
)

// ws_listen connects to the gesturebrainz /ws endpoint and prints events.

type message struct {
	Type string          `json:"type"`
	Ts   time.Time       `json:"ts"`
	Data json.RawMessage `json:"data"`
}

func main() {
	var (
		wsURL = flag.String("ws", "ws://127.0.0.1:3002/ws", "gesturebrainz websocket URL")
		raw   = flag.Bool("raw", false, "Print frames verbatim")
		tags  = flag.Bool("tags", false, "Also print coalesced interrupt tag counts")
	)
	flag.Parse()

	u, err := url.Parse(*wsURL)
	if err != nil {
		log.Fatalf("invalid websocket URL: %v", err)
	}

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)

	d := websocket.Dialer{HandshakeTimeout: 5 * time.Second}

	log.Printf("connecting to %s...", u.String())
	conn, _, err := d.Dial(u.String(), nil)
	if err != nil {
		log.Fatalf("failed to connect: %v", err)
	}
	defer conn.Close()
	log.Printf("connected! (press Ctrl+C to exit)")

	var writeMu sync.Mutex

	// The server pings every 20s; answer within the read deadline.
	conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPingHandler(func(appData string) error {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		writeMu.Lock()
		defer writeMu.Unlock()
		return conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(5*time.Second))
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			messageType, msg, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					log.Printf("websocket error: %v", err)
				}
				return
			}
			if messageType != websocket.TextMessage {
				continue
			}
			if *raw {
				fmt.Println(string(msg))
				continue
			}
			if line, ok := formatMessage(msg, *tags); ok {
				fmt.Println(line)
			}
		}
	}()

	select {
	case <-sigc:
		log.Printf("shutting down...")
		writeMu.Lock()
		err := conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		writeMu.Unlock()
		if err != nil {
			log.Printf("error closing connection: %v", err)
		}
	case <-done:
		log.Printf("connection closed")
	}
}

// formatMessage renders one frame as a log line. ok is false for frames
// that should not be printed.
func formatMessage(frame []byte, showTags bool) (line string, ok bool) {
	var m message
	if err := json.Unmarshal(frame, &m); err != nil {
		return "[TEXT] " + string(frame), true
	}
	ts := m.Ts.Local().Format("15:04:05.000")

	switch m.Type {
	case "gesture":
		var g struct {
			Direction string `json:"direction"`
		}
		if err := json.Unmarshal(m.Data, &g); err != nil {
			return "", false
		}
		return fmt.Sprintf("%s [GESTURE] %s", ts, strings.ToUpper(g.Direction)), true

	case "interrupts":
		if !showTags {
			return "", false
		}
		var in struct {
			Counts map[string]int `json:"counts"`
		}
		if err := json.Unmarshal(m.Data, &in); err != nil {
			return "", false
		}
		names := make([]string, 0, len(in.Counts))
		for name := range in.Counts {
			names = append(names, name)
		}
		sort.Strings(names)
		parts := make([]string, 0, len(names))
		for _, name := range names {
			parts = append(parts, fmt.Sprintf("%s=%d", name, in.Counts[name]))
		}
		return fmt.Sprintf("%s [TAGS] %s", ts, strings.Join(parts, " ")), true

	case "cycle_error":
		var e struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(m.Data, &e)
		return fmt.Sprintf("%s [ERROR] %s", ts, e.Error), true

	default:
		pretty, err := json.MarshalIndent(m.Data, "", "  ")
		if err != nil {
			return "", false
		}
		return fmt.Sprintf("%s [%s]\n%s", ts, strings.ToUpper(m.Type), pretty), true
	}
}
