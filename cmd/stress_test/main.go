package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rl1809/clinic-ledger/internal/adapter/storage"
	"github.com/rl1809/clinic-ledger/internal/core/domain"
	"github.com/rl1809/clinic-ledger/internal/core/service"
)

const (
	batchStock    = 10
	batchCount    = 2
	initialStock  = batchStock * batchCount
	totalRequests = 50
)

func main() {
	ctx := context.Background()

	// Fresh SQLite database unless a driver is given
	driver := os.Getenv("DB_DRIVER")
	dsn := os.Getenv("DATABASE_DSN")
	if driver == "" || dsn == "" {
		dir, err := os.MkdirTemp("", "clinic-stress-")
		if err != nil {
			log.Fatalf("failed to create temp dir: %v", err)
		}
		defer os.RemoveAll(dir)
		driver = storage.DriverSQLite
		dsn = filepath.Join(dir, "stress.db") + "?_pragma=busy_timeout(10000)&_pragma=foreign_keys(1)&_txlock=immediate"
	}

	store, err := storage.Open(ctx, driver, dsn)
	if err != nil {
		log.Fatalf("failed to open store: %v", err)
	}
	defer store.Close()
	if err := store.Migrate(); err != nil {
		log.Fatalf("failed to migrate: %v", err)
	}

	// Seed one medicine split over two batches, and one record per request
	reg := store.Registry()
	medicineID, err := reg.AddMedicine(ctx, "stress-medicine-"+uuid.NewString()[:8], "tablet", decimal.NewFromInt(5))
	if err != nil {
		log.Fatalf("failed to add medicine: %v", err)
	}
	expiry := time.Now().UTC().AddDate(0, 6, 0)
	for i := 0; i < batchCount; i++ {
		if _, err := reg.ReceiveBatch(ctx, medicineID, fmt.Sprintf("B-%d", i), expiry.AddDate(0, 0, i), batchStock); err != nil {
			log.Fatalf("failed to receive batch: %v", err)
		}
	}
	dentistID, err := reg.AddDentist(ctx, "Stress Dentist", "")
	if err != nil {
		log.Fatalf("failed to add dentist: %v", err)
	}
	customerID, err := reg.AddCustomer(ctx, "Stress Customer", "")
	if err != nil {
		log.Fatalf("failed to add customer: %v", err)
	}
	records := make([]int64, totalRequests)
	for i := range records {
		if records[i], err = reg.OpenTreatment(ctx, customerID, dentistID, nil); err != nil {
			log.Fatalf("failed to open treatment: %v", err)
		}
	}

	clinic := service.NewClinicService(store, service.Options{})

	// Counters
	var successCount atomic.Int32
	var shortageCount atomic.Int32
	var errorCount atomic.Int32

	// Spawn concurrent requests
	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < totalRequests; i++ {
		wg.Add(1)
		go func(recordID int64) {
			defer wg.Done()

			_, err := clinic.Dispense(ctx, service.DispenseRequest{
				RequestID:         uuid.NewString(),
				TreatmentRecordID: recordID,
				Items:             []service.DispenseItem{{MedicineID: medicineID, Quantity: 1}},
			})
			switch {
			case err == nil:
				successCount.Add(1)
			case errors.Is(err, domain.ErrInsufficientStock):
				shortageCount.Add(1)
			default:
				errorCount.Add(1)
				log.Printf("record %d: %v", recordID, err)
			}
		}(records[i])
	}

	wg.Wait()
	elapsed := time.Since(start)

	// Results
	success := successCount.Load()
	shortage := shortageCount.Load()
	failed := errorCount.Load()

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Driver:           %s\n", driver)
	fmt.Printf("Initial Stock:    %d\n", initialStock)
	fmt.Printf("Total Requests:   %d\n", totalRequests)
	fmt.Printf("Dispensed:        %d\n", success)
	fmt.Printf("Shortages:        %d\n", shortage)
	fmt.Printf("Errors:           %d\n", failed)
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Println("==========================================")

	// Assertions
	if success == int32(initialStock) && shortage == int32(totalRequests-initialStock) && failed == 0 {
		fmt.Printf("PASS: Exactly %d dispenses succeeded, %d hit a shortage\n", initialStock, totalRequests-initialStock)
	} else {
		fmt.Printf("FAIL: Expected %d success/%d shortage/0 errors, got %d/%d/%d\n",
			initialStock, totalRequests-initialStock, success, shortage, failed)
	}

	// Verify final stock
	var remaining, negative int
	err = store.DB().QueryRowxContext(ctx, store.DB().Rebind(`
		SELECT COALESCE(SUM(remaining), 0), COALESCE(SUM(CASE WHEN remaining < 0 THEN 1 ELSE 0 END), 0)
		FROM medicine_batches WHERE medicine_id = ?`), medicineID).Scan(&remaining, &negative)
	if err != nil {
		log.Fatalf("failed to read final stock: %v", err)
	}
	fmt.Printf("Final Stock:      %d\n", remaining)

	if remaining == 0 && negative == 0 {
		fmt.Println("PASS: Stock depleted to 0 with no negative batch")
	} else {
		fmt.Printf("FAIL: Expected stock 0 and no negative batch, got %d (%d negative)\n", remaining, negative)
	}

	unpaid, err := clinic.Unpaid(ctx)
	if err != nil {
		log.Fatalf("failed to list unpaid records: %v", err)
	}
	fmt.Printf("Unpaid Records:   %d\n", len(unpaid))
}
