// Command seed fills Postgres with fake patients, upcoming appointments and
// open slots for local development.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Foundasion/appointment-confirmation-bot/internal/directory"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := directory.Connect(ctx, dsn)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	gofakeit.Seed(time.Now().UnixNano())

	patientIDs, err := seedPatients(context.Background(), pool, 500)
	if err != nil {
		log.Fatalf("seed patients: %v", err)
	}
	if err := seedAppointments(context.Background(), pool, patientIDs); err != nil {
		log.Fatalf("seed appointments: %v", err)
	}
	if err := seedOpenSlots(context.Background(), pool, 14); err != nil {
		log.Fatalf("seed open slots: %v", err)
	}

	log.Println("seed complete")
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, count int) ([]string, error) {
	log.Printf("seeding %d patients", count)

	const batchSize = 100
	ids := make([]string, 0, count)

	for offset := 0; offset < count; offset += batchSize {
		end := offset + batchSize
		if end > count {
			end = count
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return nil, err
		}

		for i := offset; i < end; i++ {
			id := fmt.Sprintf("P%04d", i+1)
			name := gofakeit.Name()
			phone := "+1" + gofakeit.Numerify("##########")
			email := gofakeit.Email()

			_, err := tx.Exec(ctx, `
				INSERT INTO patients (id, name, phone_number, email, created_at, updated_at)
				VALUES ($1, $2, $3, $4, now(), now())
			`, id, name, phone, email)
			if err != nil {
				_ = tx.Rollback(ctx)
				return nil, err
			}
			ids = append(ids, id)
		}

		if err := tx.Commit(ctx); err != nil {
			return nil, err
		}

		log.Printf("patients seeded: %d/%d", end, count)
	}

	return ids, nil
}

func seedAppointments(ctx context.Context, pool *pgxpool.Pool, patientIDs []string) error {
	log.Printf("seeding appointments for %d patients", len(patientIDs))

	doctors := []string{
		"Dr. Smith",
		"Dr. Johnson",
		"Dr. Patel",
		"Dr. Garcia",
		"Dr. Chen",
		"Dr. Williams",
	}
	notes := []string{
		"Regular checkup",
		"Dental cleaning",
		"Follow-up visit",
		"Annual physical",
		"",
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	seq := 0
	for _, patientID := range patientIDs {
		// Roughly two thirds of patients get an upcoming appointment.
		if gofakeit.Number(0, 2) == 0 {
			continue
		}
		seq++

		id := fmt.Sprintf("A%04d", seq)
		doctor := doctors[gofakeit.Number(0, len(doctors)-1)]
		start := time.Now().
			Add(time.Duration(gofakeit.Number(1, 14)) * 24 * time.Hour).
			Truncate(time.Hour).
			Add(time.Duration(gofakeit.Number(9, 16)) * time.Hour)
		note := notes[gofakeit.Number(0, len(notes)-1)]

		_, err := tx.Exec(ctx, `
			INSERT INTO appointments (id, patient_id, doctor, start_time, duration_minutes, status, notes, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), now(), now())
		`, id, patientID, doctor, start, 30, directory.StatusScheduled, note)
		if err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	log.Printf("appointments seeded: %d", seq)
	return nil
}

func seedOpenSlots(ctx context.Context, pool *pgxpool.Pool, days int) error {
	log.Printf("seeding open slots across %d days", days)

	hours := []int{9, 10, 11, 14, 15, 16}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	count := 0
	for day := 1; day <= days; day++ {
		base := time.Now().Truncate(24 * time.Hour).Add(time.Duration(day) * 24 * time.Hour)
		for _, h := range hours {
			// Keep about half the grid open so reschedule offers vary.
			if gofakeit.Bool() {
				continue
			}
			count++

			_, err := tx.Exec(ctx, `
				INSERT INTO open_slots (id, start_time, status, created_at)
				VALUES ($1, $2, 'open', now())
			`, uuid.New(), base.Add(time.Duration(h)*time.Hour))
			if err != nil {
				return err
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	log.Printf("open slots seeded: %d", count)
	return nil
}
