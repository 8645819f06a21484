package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"time"

	"ms-checkout/internal/config"
	"ms-checkout/internal/database/migrations"
	"ms-checkout/internal/ledger"
	"ms-checkout/internal/logger"
	"ms-checkout/internal/models"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
)

func main() {
	command := flag.String("cmd", "up", "up, down, to or version")
	target := flag.Uint("version", 0, "target version for -cmd=to")
	seed := flag.Bool("seed", false, "insert a demo event with a voucher after migrating")
	flag.Parse()

	_ = godotenv.Load()
	cfg := config.Load()
	log := logger.NewWithWriter(os.Stdout)

	sqldb, err := sql.Open("postgres", cfg.Database.DSN)
	if err != nil {
		log.Fatal("MIGRATE", fmt.Sprintf("Failed to open database: %v", err))
	}

	runner := migrations.NewRunner(sqldb, migrations.MigrateOptions{MigrationsDir: cfg.Database.MigrationsDir}, log)
	defer runner.Close()

	switch *command {
	case "up":
		err = runner.RunMigrations()
	case "down":
		err = runner.MigrateDown()
	case "to":
		err = runner.MigrateTo(*target)
	case "version":
		var v uint
		v, err = runner.Version()
		if err == nil {
			log.Info("MIGRATE", fmt.Sprintf("Schema version: %d", v))
		}
	default:
		err = fmt.Errorf("unknown command %q", *command)
	}
	if err != nil {
		log.Fatal("MIGRATE", err.Error())
	}

	if *seed {
		if err := seedData(context.Background(), cfg.Database.DSN, log); err != nil {
			log.Fatal("SEED", err.Error())
		}
	}
	log.Info("MIGRATE", "Done")
}

// seedData inserts one upcoming paid event with an early-bird voucher.
func seedData(ctx context.Context, dsn string, log *logger.Logger) error {
	sqldb, err := sql.Open("postgres", dsn)
	if err != nil {
		return err
	}
	bunDB := bun.NewDB(sqldb, pgdialect.New())
	defer bunDB.Close()
	db := ledger.New(bunDB)

	now := time.Now().UTC()
	event := &models.Event{
		ID:             "event001",
		OrganizerID:    "organizer001",
		Name:           "Summer Fest 2025",
		Category:       "music",
		Location:       "Jakarta",
		Description:    "Annual summer music festival.",
		Paid:           true,
		Price:          decimal.NewFromInt(150000),
		TotalSeats:     500,
		RemainingSeats: 500,
		StartDate:      now.AddDate(0, 1, 0),
		EndDate:        now.AddDate(0, 1, 3),
		CreatedAt:      now,
	}
	voucher := &models.Voucher{
		ID:             "voucher001",
		EventID:        event.ID,
		Code:           "SUMMER20",
		DiscountAmount: decimal.NewFromInt(20),
		DiscountType:   models.DiscountPercentage,
		IsActive:       true,
		StartDate:      now,
		EndDate:        now.AddDate(0, 1, 0),
	}

	return db.RunAtomic(ctx, func(ctx context.Context, tx *ledger.DB) error {
		if err := tx.CreateEvent(ctx, event); err != nil {
			return fmt.Errorf("seed event: %w", err)
		}
		if err := tx.CreateVoucher(ctx, voucher); err != nil {
			return fmt.Errorf("seed voucher: %w", err)
		}
		log.Info("SEED", fmt.Sprintf("Seeded event %s with voucher %s", event.ID, voucher.Code))
		return nil
	})
}
