package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinora/clinic-scheduling/internal/db"
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

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	if err := db.Migrate(ctx, pool); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	gofakeit.Seed(time.Now().UnixNano())

	doctorIDs, err := seedDoctors(context.Background(), pool, 10)
	if err != nil {
		log.Fatalf("seed doctors: %v", err)
	}
	for _, doctorID := range doctorIDs {
		if err := seedDoctorData(context.Background(), pool, doctorID); err != nil {
			log.Fatalf("seed doctor %s: %v", doctorID, err)
		}
	}

	log.Println("seed complete")
}

func seedDoctors(ctx context.Context, pool *pgxpool.Pool, count int) ([]uuid.UUID, error) {
	log.Printf("seeding %d doctors", count)

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	ids := make([]uuid.UUID, 0, count)
	for i := 0; i < count; i++ {
		id := uuid.New()
		name := "Dr. " + gofakeit.Name()
		email := gofakeit.Email()

		_, err := tx.Exec(ctx, `
			INSERT INTO doctors (id, name, email, created_at, updated_at)
			VALUES ($1, $2, $3, now(), now())
		`, id, name, email)
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

// seedDoctorData gives each doctor a patient base, a couple of consultation
// types and a Monday-to-Friday availability template.
func seedDoctorData(ctx context.Context, pool *pgxpool.Pool, doctorID uuid.UUID) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for i := 0; i < 50; i++ {
		_, err := tx.Exec(ctx, `
			INSERT INTO patients (id, doctor_id, name, email, created_at, updated_at)
			VALUES ($1, $2, $3, $4, now(), now())
		`, uuid.New(), doctorID, gofakeit.Name(), gofakeit.Email())
		if err != nil {
			return err
		}
	}

	types := []struct {
		name     string
		duration int
		rest     int
	}{
		{"Consultation", 20, 5},
		{"Follow-up", 15, 0},
		{"Extended consultation", 45, 15},
	}
	for _, t := range types {
		_, err := tx.Exec(ctx, `
			INSERT INTO consultation_types (id, doctor_id, name, duration_minutes, rest_after_minutes, active, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, true, now(), now())
		`, uuid.New(), doctorID, t.name, t.duration, t.rest)
		if err != nil {
			return err
		}
	}

	planID := uuid.New()
	_, err = tx.Exec(ctx, `
		INSERT INTO time_plans (id, doctor_id, active, created_at, updated_at)
		VALUES ($1, $2, true, now(), now())
	`, planID, doctorID)
	if err != nil {
		return err
	}

	// Monday (1) through Friday (5), morning and afternoon windows.
	for weekday := 1; weekday <= 5; weekday++ {
		windows := [][2]string{{"08:00", "12:00"}, {"14:00", "18:00"}}
		for _, win := range windows {
			_, err := tx.Exec(ctx, `
				INSERT INTO time_slots (id, time_plan_id, doctor_id, weekday, open_time, close_time, active)
				VALUES ($1, $2, $3, $4, $5, $6, true)
			`, uuid.New(), planID, doctorID, weekday, win[0], win[1])
			if err != nil {
				return err
			}
		}
	}

	return tx.Commit(ctx)
}
