package handler

import (
	"context"
	"fmt"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/prepdeck/prepdeck-backend/internal/config"
	"github.com/prepdeck/prepdeck-backend/internal/engine"
	"github.com/prepdeck/prepdeck-backend/internal/middleware"
	"github.com/prepdeck/prepdeck-backend/internal/model"
	"github.com/prepdeck/prepdeck-backend/internal/service"
	ws "github.com/prepdeck/prepdeck-backend/internal/websocket"
)

type noopSaver struct{}

func (noopSaver) SaveSnapshot(context.Context, engine.Snapshot) error { return nil }

type noopFinalizer struct{ id uuid.UUID }

func (f noopFinalizer) Finalize(context.Context, engine.Snapshot, int, engine.SubmitReason) (uuid.UUID, error) {
	return f.id, nil
}

func streamQuestions(n int) []model.QuestionForUser {
	qs := make([]model.QuestionForUser, n)
	for i := range qs {
		qs[i] = model.QuestionForUser{
			ID:      uuid.New(),
			Prompt:  fmt.Sprintf("question %d", i),
			Options: []model.Option{{ID: "a", Text: "A"}, {ID: "b", Text: "B"}},
			Subject: "math",
		}
	}
	return qs
}

// The stream handler writes from two goroutines: the event pusher and the
// action replies on the reader loop. This drives both at once over a real
// connection with a fast countdown; run with -race to catch unserialized
// frame writes.
func TestExamStreamConcurrentTicksAndActions(t *testing.T) {
	gin.SetMode(gin.TestMode)

	qs := streamQuestions(4)
	sess := engine.NewSession(uuid.New(), 42, qs, 3600, noopSaver{}, noopFinalizer{id: uuid.New()}, engine.Options{
		CountdownTick:    2 * time.Millisecond,
		AutosaveInterval: time.Hour,
		AutosaveTimeout:  time.Hour,
	}, zerolog.Nop())
	if err := sess.Start(); err != nil {
		t.Fatal(err)
	}
	defer sess.Close(context.Background())

	registry := engine.NewRegistry()
	if err := registry.Put(sess); err != nil {
		t.Fatal(err)
	}

	svc := service.NewExamService(&config.Config{}, nil, nil, nil, registry, nil, zerolog.Nop())
	h := NewWSHandler(svc, zerolog.Nop(), nil)

	r := gin.New()
	r.GET("/ws/:session_id", func(c *gin.Context) {
		c.Set(middleware.ContextKeyClaims, &service.Claims{UserID: 42})
		h.ExamStream(c)
	})
	srv := httptest.NewServer(r)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/" + sess.ID().String()
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	if resp != nil {
		resp.Body.Close()
	}
	defer conn.Close()

	const actions = 30

	// Drain everything the server pushes and count action replies among
	// the interleaved tick events. Replies are written directly, never
	// dropped, so every action must produce one.
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		pongs     int
		readErr   error
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			var frame map[string]interface{}
			conn.SetReadDeadline(time.Now().Add(5 * time.Second))
			if err := conn.ReadJSON(&frame); err != nil {
				mu.Lock()
				readErr = err
				mu.Unlock()
				return
			}
			mu.Lock()
			switch frame["event"] {
			case "success":
				successes++
			case "pong":
				pongs++
			}
			done := successes >= actions && pongs >= actions
			mu.Unlock()
			if done {
				return
			}
		}
	}()

	for i := 0; i < actions; i++ {
		if err := conn.WriteJSON(ws.RequestPayload{Action: ws.ActionPing}); err != nil {
			t.Fatalf("write ping: %v", err)
		}
		answer := ws.RequestPayload{
			Action:     ws.ActionAnswer,
			QuestionID: qs[i%len(qs)].ID,
			OptionID:   "a",
		}
		if err := conn.WriteJSON(answer); err != nil {
			t.Fatalf("write answer: %v", err)
		}
	}

	wg.Wait()
	mu.Lock()
	defer mu.Unlock()
	if readErr != nil {
		t.Fatalf("stream read failed after %d successes, %d pongs: %v", successes, pongs, readErr)
	}
	if successes < actions || pongs < actions {
		t.Fatalf("expected %d action replies and %d pongs, got %d and %d", actions, actions, successes, pongs)
	}
}
