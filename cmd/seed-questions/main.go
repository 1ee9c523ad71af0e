package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/prepdeck/prepdeck-backend/internal/config"
	"github.com/prepdeck/prepdeck-backend/internal/database"
	"github.com/prepdeck/prepdeck-backend/internal/logger"
	"github.com/prepdeck/prepdeck-backend/internal/model"
)

// seed-questions fills the question bank with a small multi-subject set so
// a fresh environment can run exams immediately.
func main() {
	cfg := config.Load()
	log := logger.New(cfg.LogLevel, cfg.LogFormat)
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	fmt.Println("=== Seeding Question Bank ===")

	seeded := 0
	for _, q := range bank() {
		options, err := json.Marshal(q.Options)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to marshal options")
		}
		_, err = pool.Exec(ctx,
			`INSERT INTO questions (prompt, options, correct_option, subject, topic)
			 VALUES ($1, $2, $3, $4, $5)
			 ON CONFLICT DO NOTHING`,
			q.Prompt, options, q.CorrectOption, q.Subject, q.Topic,
		)
		if err != nil {
			log.Fatal().Err(err).Str("prompt", q.Prompt).Msg("Failed to insert question")
		}
		seeded++
	}

	fmt.Printf("Seeded %d questions\n", seeded)
}

func bank() []model.Question {
	abcd := func(a, b, c, d string) []model.Option {
		return []model.Option{
			{ID: "a", Text: a},
			{ID: "b", Text: b},
			{ID: "c", Text: c},
			{ID: "d", Text: d},
		}
	}

	return []model.Question{
		{
			Prompt:        "What is the derivative of x^2?",
			Options:       abcd("x", "2x", "x^2", "2"),
			CorrectOption: "b",
			Subject:       "math",
			Topic:         "calculus",
		},
		{
			Prompt:        "Solve: 3x + 6 = 21",
			Options:       abcd("3", "5", "7", "9"),
			CorrectOption: "b",
			Subject:       "math",
			Topic:         "algebra",
		},
		{
			Prompt:        "What is the slope of the line y = 4x - 1?",
			Options:       abcd("-1", "1", "4", "0.25"),
			CorrectOption: "c",
			Subject:       "math",
			Topic:         "linear-equations",
		},
		{
			Prompt:        "Which particle carries a negative charge?",
			Options:       abcd("Proton", "Neutron", "Electron", "Photon"),
			CorrectOption: "c",
			Subject:       "science",
			Topic:         "atomic-structure",
		},
		{
			Prompt:        "Water boils at what temperature at sea level?",
			Options:       abcd("90°C", "100°C", "110°C", "120°C"),
			CorrectOption: "b",
			Subject:       "science",
			Topic:         "states-of-matter",
		},
		{
			Prompt:        "Which organelle produces ATP?",
			Options:       abcd("Nucleus", "Ribosome", "Mitochondrion", "Golgi apparatus"),
			CorrectOption: "c",
			Subject:       "science",
			Topic:         "cell-biology",
		},
		{
			Prompt:        "Identify the noun in: \"The quick fox jumps.\"",
			Options:       abcd("quick", "fox", "jumps", "the"),
			CorrectOption: "b",
			Subject:       "english",
			Topic:         "parts-of-speech",
		},
		{
			Prompt:        "Which sentence is punctuated correctly?",
			Options:       abcd("Its raining today.", "It's raining today.", "Its' raining today.", "Its raining, today."),
			CorrectOption: "b",
			Subject:       "english",
			Topic:         "punctuation",
		},
	}
}
