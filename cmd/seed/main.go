package main

import (
	"context"
	_ "embed"
	"log"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Dharmendra-07/Hospital-Management-System-V2/internal/db"
)

//go:embed schema.sql
var schema string

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	if _, err := pool.Exec(context.Background(), schema); err != nil {
		log.Fatalf("apply schema: %v", err)
	}
	log.Println("schema applied")

	gofakeit.Seed(time.Now().UnixNano())

	doctorIDs, err := seedDoctors(context.Background(), pool, 50)
	if err != nil {
		log.Fatalf("seed doctors: %v", err)
	}
	if err := seedPatients(context.Background(), pool, 5000); err != nil {
		log.Fatalf("seed patients: %v", err)
	}
	if err := seedAvailability(context.Background(), pool, doctorIDs, 14); err != nil {
		log.Fatalf("seed availability: %v", err)
	}

	log.Println("seed complete")
}

func seedDoctors(ctx context.Context, pool *pgxpool.Pool, count int) ([]uuid.UUID, error) {
	log.Printf("seeding %d doctors", count)

	specialties := []string{
		"Dermatology",
		"Cardiology",
		"General Practice",
		"Orthopedics",
		"Endocrinology",
		"Neurology",
		"Pediatrics",
		"Psychiatry",
		"Ophthalmology",
		"ENT",
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	ids := make([]uuid.UUID, 0, count)
	for i := 0; i < count; i++ {
		id := uuid.New()
		name := "Dr. " + gofakeit.Name()
		spec := specialties[gofakeit.Number(0, len(specialties)-1)]
		email := gofakeit.Email()

		_, err := tx.Exec(ctx, `
			INSERT INTO doctors (id, name, specialty, email, created_at, updated_at)
			VALUES ($1, $2, $3, $4, now(), now())
		`, id, name, spec, email)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	log.Println("doctors seeded")
	return ids, nil
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, count int) error {
	log.Printf("seeding %d patients", count)

	const batchSize = 500

	for offset := 0; offset < count; offset += batchSize {
		end := offset + batchSize
		if end > count {
			end = count
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}

		for i := offset; i < end; i++ {
			id := uuid.New()
			name := gofakeit.Name()
			email := gofakeit.Email()
			phone := gofakeit.Phone()

			_, err := tx.Exec(ctx, `
				INSERT INTO patients (id, name, email, phone, created_at, updated_at)
				VALUES ($1, $2, $3, $4, now(), now())
			`, id, name, email, phone)
			if err != nil {
				_ = tx.Rollback(ctx)
				return err
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return err
		}

		log.Printf("patients seeded: %d/%d", end, count)
	}

	log.Println("patients seeded")
	return nil
}

// seedAvailability gives every doctor half-hour slots from 09:00 to
// 17:00 for each of the next days.
func seedAvailability(ctx context.Context, pool *pgxpool.Pool, doctorIDs []uuid.UUID, days int) error {
	log.Printf("seeding availability for %d doctors over %d days", len(doctorIDs), days)

	today := time.Now()
	start := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.UTC)

	for _, doctorID := range doctorIDs {
		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}

		for day := 1; day <= days; day++ {
			date := start.AddDate(0, 0, day)
			for minutes := 9 * 60; minutes < 17*60; minutes += 30 {
				capacity := gofakeit.Number(1, 3)
				startTime := time.Date(2000, 1, 1, minutes/60, minutes%60, 0, 0, time.UTC)
				endTime := startTime.Add(30 * time.Minute)

				_, err := tx.Exec(ctx, `
					INSERT INTO availability_slots (id, doctor_id, date, start_time, end_time, capacity, is_available, created_at, updated_at)
					VALUES ($1, $2, $3, $4, $5, $6, true, now(), now())
					ON CONFLICT (doctor_id, date, start_time) DO NOTHING
				`, uuid.New(), doctorID, date, startTime.Format("15:04:05"), endTime.Format("15:04:05"), capacity)
				if err != nil {
					_ = tx.Rollback(ctx)
					return err
				}
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return err
		}
	}

	log.Println("availability seeded")
	return nil
}
