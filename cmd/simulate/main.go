// Command simulate drives a running confirmbot instance the way the
// telephony media server would: it opens the media-stream websocket, sends
// start, audio and transcript frames from a scripted caller, then reads the
// stored transcript and outcome back through the control-plane API.
package main

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/Foundasion/appointment-confirmation-bot/internal/telephony"
)

type simConfig struct {
	ServerHost  string        // host:port of the running confirmbot
	Scenario    string        // confirm, reschedule or silent
	AudioChunks int           // how many fake audio frames to send per utterance
	ReplyDelay  time.Duration // pause between caller utterances
}

// scenarios maps a scenario name to the caller's scripted utterances.
var scenarios = map[string][]string{
	"confirm": {
		"Yes, that works for me",
		"No that's all, thank you",
	},
	"reschedule": {
		"No, I can't make it, I need to reschedule",
		"The first one works",
		"No, goodbye",
	},
	"silent": {},
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("call simulator starting")

	cfg := loadConfig()
	script, ok := scenarios[cfg.Scenario]
	if !ok {
		log.Fatalf("unknown scenario %q (want confirm, reschedule or silent)", cfg.Scenario)
	}

	callSID := "SIM" + strings.ToUpper(uuid.New().String()[:8])
	streamSID := "MZ" + uuid.New().String()

	log.Printf("scenario=%s call_sid=%s server=%s", cfg.Scenario, callSID, cfg.ServerHost)

	conn := dialMediaStream(cfg.ServerHost)
	defer func() { _ = conn.Close() }()

	// Discard server-to-caller audio in the background so writes never block.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	sendFrame(conn, telephony.StreamMessage{Event: telephony.EventConnected})
	sendFrame(conn, telephony.StreamMessage{
		Event:     telephony.EventStart,
		StreamSID: streamSID,
		Start: &telephony.StartFrame{
			StreamSID: streamSID,
			CallSID:   callSID,
			Tracks:    []string{"inbound"},
		},
	})

	// Give the server time to set up the model session and speak first.
	time.Sleep(cfg.ReplyDelay)

	for _, utterance := range script {
		sendAudio(conn, streamSID, cfg.AudioChunks)

		log.Printf("caller says: %q", utterance)
		sendFrame(conn, telephony.StreamMessage{
			Event:     telephony.EventMark,
			StreamSID: streamSID,
			Mark:      &telephony.MarkFrame{Name: telephony.MarkTranscript, Value: utterance},
		})

		time.Sleep(cfg.ReplyDelay)
	}

	sendFrame(conn, telephony.StreamMessage{Event: telephony.EventStop, StreamSID: streamSID})
	_ = conn.Close()

	// The server flushes transcript and outcome after the stream ends.
	time.Sleep(time.Second)
	printCallRecord(cfg.ServerHost, callSID)
}

func loadConfig() simConfig {
	return simConfig{
		ServerHost:  getEnv("SIM_SERVER_HOST", "localhost:8080"),
		Scenario:    getEnv("SIM_SCENARIO", "confirm"),
		AudioChunks: getInt("SIM_AUDIO_CHUNKS", 25),
		ReplyDelay:  getDuration("SIM_REPLY_DELAY", 2*time.Second),
	}
}

func dialMediaStream(host string) *websocket.Conn {
	u := url.URL{Scheme: "ws", Host: host, Path: "/media-stream"}

	conn, resp, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		if resp != nil {
			log.Fatalf("dial %s: %v (status %s)", u.String(), err, resp.Status)
		}
		log.Fatalf("dial %s: %v", u.String(), err)
	}
	return conn
}

func sendFrame(conn *websocket.Conn, msg telephony.StreamMessage) {
	if err := conn.WriteJSON(msg); err != nil {
		log.Fatalf("send %s frame: %v", msg.Event, err)
	}
}

// sendAudio streams fake mu-law silence, 160 bytes per frame like a real
// 8kHz/20ms telephony chunk.
func sendAudio(conn *websocket.Conn, streamSID string, chunks int) {
	silence := make([]byte, 160)
	for i := range silence {
		silence[i] = 0xFF
	}
	payload := base64.StdEncoding.EncodeToString(silence)

	for i := 0; i < chunks; i++ {
		sendFrame(conn, telephony.StreamMessage{
			Event:     telephony.EventMedia,
			StreamSID: streamSID,
			Media:     &telephony.MediaFrame{Payload: payload},
		})
		time.Sleep(20 * time.Millisecond)
	}
}

func printCallRecord(host, callSID string) {
	base := "http://" + host

	var transcript struct {
		CallSID    string `json:"call_sid"`
		Transcript []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"transcript"`
	}
	if err := getJSON(base+"/call-transcript/"+callSID, &transcript); err != nil {
		log.Fatalf("fetch transcript: %v", err)
	}

	var outcome struct {
		CallSID     string  `json:"call_sid"`
		Outcome     *string `json:"outcome"`
		NewDateTime *string `json:"new_datetime"`
	}
	if err := getJSON(base+"/call-outcome/"+callSID, &outcome); err != nil {
		log.Fatalf("fetch outcome: %v", err)
	}

	fmt.Println("\n" + strings.Repeat("=", 60))
	fmt.Printf("CALL %s\n", callSID)
	fmt.Println(strings.Repeat("=", 60))

	for _, turn := range transcript.Transcript {
		fmt.Printf("  [%s] %s\n", turn.Role, turn.Content)
	}

	fmt.Println(strings.Repeat("-", 60))
	if outcome.Outcome != nil {
		fmt.Printf("Outcome: %s\n", *outcome.Outcome)
	} else {
		fmt.Println("Outcome: (none)")
	}
	if outcome.NewDateTime != nil {
		fmt.Printf("New time: %s\n", *outcome.NewDateTime)
	}
}

func getJSON(url string, out any) error {
	resp, err := http.Get(url)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: status %d", url, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
