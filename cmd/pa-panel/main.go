// Command pa-panel is a headless PA control panel: it authenticates
// against the server, subscribes to the push channel and performs one
// operator action (broadcast, text, background, emergency, listen).
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ZACCALI/CICS-PA-SYSTEM-FINAL/internal/tone"
	"github.com/ZACCALI/CICS-PA-SYSTEM-FINAL/internal/types"
	"github.com/ZACCALI/CICS-PA-SYSTEM-FINAL/pkg/client"
	"github.com/ZACCALI/CICS-PA-SYSTEM-FINAL/pkg/protocol"
)

func main() {
	var (
		server   = flag.String("server", "http://localhost:8080", "PA server base URL")
		user     = flag.String("user", "", "operator id")
		name     = flag.String("name", "", "operator display name")
		zonesArg = flag.String("zones", "", "comma-separated zones to deselect (default: all selected)")
		action   = flag.String("action", "listen", "listen | broadcast | text | background | emergency-on | emergency-off")
		text     = flag.String("text", "", "announcement text for -action text")
		audio    = flag.String("audio", "", "audio reference for -action background")
		duration = flag.Duration("duration", 10*time.Second, "broadcast length for -action broadcast")
	)
	flag.Parse()

	if *user == "" {
		log.Fatal("-user is required")
	}
	if *name == "" {
		*name = *user
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	token, err := fetchToken(ctx, *server, *user, *name)
	if err != nil {
		log.Fatalf("Failed to authenticate: %v", err)
	}

	cfg := client.Config{
		ServerURL: *server,
		Token:     token,
		UserID:    *user,
		UserName:  *name,
	}

	siren := newToneSiren()
	panel := client.NewPanel(cfg, campusZones(), client.Devices{
		Mic:    &consoleMic{},
		Synth:  &consoleSynth{},
		Player: &consolePlayer{},
		Siren:  siren,
	})

	for _, z := range splitZones(*zonesArg) {
		if err := panel.Zones.Toggle(z); err != nil {
			log.Fatalf("Cannot deselect zone %s: %v", z, err)
		}
	}

	errCh := make(chan error, 1)
	go func() { errCh <- panel.Run(ctx) }()
	defer func() { _ = panel.Close() }()

	// Give the push subscription a moment to deliver the snapshot.
	time.Sleep(200 * time.Millisecond)

	switch *action {
	case "listen":
		log.Printf("Listening for channel state (Ctrl+C to stop)")
		waitDone(ctx, errCh)
	case "broadcast":
		if err := panel.StartBroadcast(ctx); err != nil {
			log.Fatalf("Broadcast rejected: %v", err)
		}
		log.Printf("On air for %s on zones %v", *duration, panel.Zones.Selected())
		select {
		case <-time.After(*duration):
		case <-ctx.Done():
		}
		panel.StopBroadcast(context.Background())
		log.Printf("Off air")
	case "text":
		if *text == "" {
			log.Fatal("-text is required for -action text")
		}
		result, err := panel.SendText(ctx, *text)
		if err != nil {
			log.Fatalf("Text announcement %s: %v", result, err)
		}
		log.Printf("Text announcement sent to %v", panel.Zones.Selected())
		waitDone(ctx, errCh)
	case "background":
		if *audio == "" {
			log.Fatal("-audio is required for -action background")
		}
		task, err := panel.PlayBackground(ctx, *audio)
		if err != nil {
			log.Fatalf("Background rejected: %v", err)
		}
		log.Printf("Background slot held (%s), Ctrl+C to stop", task.ID)
		waitDone(ctx, errCh)
		panel.StopBackground(context.Background())
	case "emergency-on", "emergency-off":
		act := types.EmergencyActivate
		if *action == "emergency-off" {
			act = types.EmergencyDeactivate
		}
		status, err := panel.ToggleEmergency(ctx, act)
		if err != nil {
			log.Fatalf("Emergency toggle failed: %v", err)
		}
		log.Printf("Emergency active=%v, %d history entries", status.Active, len(status.History))
	default:
		log.Fatalf("Unknown action %q", *action)
	}
}

func waitDone(ctx context.Context, errCh <-chan error) {
	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil && ctx.Err() == nil {
			log.Printf("Push channel closed: %v", err)
		}
	}
}

// fetchToken exchanges the operator identity for a bearer token.
func fetchToken(ctx context.Context, server, user, name string) (string, error) {
	body, err := json.Marshal(protocol.TokenRequest{UserID: user, Name: name})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, server+"/api/token", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token endpoint returned %d", resp.StatusCode)
	}
	var out protocol.TokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	return out.Token, nil
}

// campusZones returns the campus zone layout. The server is the
// authority on zone names; the default here matches its default config.
func campusZones() []string {
	return []string{"Admin Office", "Classrooms", "Library", "Main Hall"}
}

func splitZones(arg string) []string {
	if arg == "" {
		return nil
	}
	parts := strings.Split(arg, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// consoleMic stands in for a capture device on a headless panel.
type consoleMic struct{}

func (consoleMic) Open() error {
	log.Printf("🎙️ microphone open")
	return nil
}

func (consoleMic) Close() {
	log.Printf("🔇 microphone closed")
}

// consoleSynth prints announcements and completes after a reading-time
// estimate.
type consoleSynth struct {
	cancel chan struct{}
}

func (s *consoleSynth) Speak(text string, done func()) {
	log.Printf("📢 %s", text)
	cancel := make(chan struct{})
	s.cancel = cancel
	dur := time.Duration(len(strings.Fields(text))) * 400 * time.Millisecond
	go func() {
		select {
		case <-time.After(dur):
			done()
		case <-cancel:
		}
	}()
}

func (s *consoleSynth) Cancel() {
	if s.cancel != nil {
		close(s.cancel)
		s.cancel = nil
	}
}

// consolePlayer logs playback and completes after a fixed interval.
type consolePlayer struct {
	cancel chan struct{}
}

func (p *consolePlayer) Play(ref string, done func()) error {
	log.Printf("▶️ playing %s", ref)
	cancel := make(chan struct{})
	p.cancel = cancel
	go func() {
		select {
		case <-time.After(5 * time.Second):
			done()
		case <-cancel:
		}
	}()
	return nil
}

func (p *consolePlayer) Stop() {
	if p.cancel != nil {
		close(p.cancel)
		p.cancel = nil
		log.Printf("⏹️ playback stopped")
	}
}

// toneSiren renders the alternating siren into a PCM buffer and drains
// it, logging throughput instead of touching sound hardware.
type toneSiren struct {
	cancel context.CancelFunc
}

func newToneSiren() *toneSiren {
	return &toneSiren{}
}

func (s *toneSiren) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	buf := tone.NewBuffer(1 << 20)
	gen := tone.NewGenerator(buf)
	go func() { _ = gen.Run(ctx) }()
	go func() {
		r := buf.NewReader(ctx)
		defer func() { _ = r.Close() }()
		n, _ := io.Copy(io.Discard, r)
		log.Printf("🚨 siren stopped after %d PCM bytes", n)
	}()
	log.Printf("🚨 siren sounding")
}

func (s *toneSiren) Stop() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}
