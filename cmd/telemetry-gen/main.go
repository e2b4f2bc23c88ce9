package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"

	"github.com/loanpilot/sentinel/internal/telemetry"
)

// telemetry-gen drives the API with synthetic interaction streams: a "human"
// profile with jittered intervals and a "bot" profile with metronome clicks
// that should trip the consistency rule.

type options struct {
	baseURL  string
	token    string
	sessions int
	events   int
	profile  string
	seed     int64
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	var opts options
	flag.StringVar(&opts.baseURL, "url", "http://localhost:3200", "API base URL")
	flag.StringVar(&opts.token, "token", os.Getenv("SENTINEL_TOKEN"), "user JWT bearer token")
	flag.IntVar(&opts.sessions, "sessions", 1, "number of sessions to simulate")
	flag.IntVar(&opts.events, "events", 60, "interaction events per session")
	flag.StringVar(&opts.profile, "profile", "human", "behavior profile: human | bot")
	flag.Int64Var(&opts.seed, "seed", 0, "random seed (0 = time-based)")
	flag.Parse()

	if opts.seed == 0 {
		opts.seed = time.Now().UnixNano()
	}
	faker := gofakeit.New(uint64(opts.seed))
	rng := rand.New(rand.NewSource(opts.seed))

	if err := run(logger, faker, rng, opts); err != nil {
		logger.Error("telemetry-gen failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger, faker *gofakeit.Faker, rng *rand.Rand, opts options) error {
	client := &http.Client{Timeout: 10 * time.Second}

	for i := 0; i < opts.sessions; i++ {
		sessionID := faker.UUID()
		device := telemetry.DeviceInfo{
			ScreenWidth:  faker.RandomInt([]int{1280, 1440, 1920, 2560}),
			ScreenHeight: faker.RandomInt([]int{720, 900, 1080, 1440}),
			Language:     faker.LanguageBCP(),
			Timezone:     faker.TimeZoneRegion(),
			Platform:     faker.RandomString([]string{"linux", "windows", "macos"}),
			RenderHash:   faker.LetterN(16),
		}

		if err := post(client, opts, "/sessions", map[string]interface{}{
			"session_id": sessionID,
			"device":     device,
		}); err != nil {
			return fmt.Errorf("start session: %w", err)
		}
		logger.Info("session started", "session_id", sessionID, "profile", opts.profile)

		events := generateEvents(rng, opts.profile, opts.events)
		if err := post(client, opts, "/sessions/"+sessionID+"/events", map[string]interface{}{
			"events": events,
		}); err != nil {
			return fmt.Errorf("ingest events: %w", err)
		}

		if err := post(client, opts, "/sessions/"+sessionID+"/score", nil); err != nil {
			return fmt.Errorf("score session: %w", err)
		}
		logger.Info("session scored", "session_id", sessionID, "events", len(events))
	}
	return nil
}

// generateEvents builds a time-ordered interaction stream. Humans click with
// 800-3200ms jitter and type with 90-280ms jitter; bots click every 120ms
// exactly.
func generateEvents(rng *rand.Rand, profile string, n int) []telemetry.InteractionEvent {
	events := make([]telemetry.InteractionEvent, 0, n)
	at := time.Now().Add(-time.Duration(n) * time.Second)

	for i := 0; i < n; i++ {
		switch {
		case i%5 == 0:
			var gap time.Duration
			if profile == "bot" {
				gap = 120 * time.Millisecond
			} else {
				gap = time.Duration(800+rng.Intn(2400)) * time.Millisecond
			}
			at = at.Add(gap)
			events = append(events, telemetry.InteractionEvent{Kind: telemetry.EventClick, At: at})
		case i%5 == 1 || i%5 == 2:
			at = at.Add(time.Duration(90+rng.Intn(190)) * time.Millisecond)
			events = append(events, telemetry.InteractionEvent{Kind: telemetry.EventKeypress, At: at})
		default:
			at = at.Add(time.Duration(1100+rng.Intn(900)) * time.Millisecond)
			events = append(events, telemetry.InteractionEvent{
				Kind: telemetry.EventPointerMove,
				X:    float64(rng.Intn(1920)),
				Y:    float64(rng.Intn(1080)),
				At:   at,
			})
		}
	}
	return events
}

func post(client *http.Client, opts options, path string, body interface{}) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}

	req, err := http.NewRequest(http.MethodPost, opts.baseURL+path, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if opts.token != "" {
		req.Header.Set("Authorization", "Bearer "+opts.token)
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("%s %s: status %d", http.MethodPost, path, resp.StatusCode)
	}
	return nil
}
