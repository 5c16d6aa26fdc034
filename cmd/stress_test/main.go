package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/rl1809/jobcard-erp/internal/adapter/storage"
	"github.com/rl1809/jobcard-erp/internal/core/domain"
	"github.com/rl1809/jobcard-erp/internal/core/service"
	"github.com/rl1809/jobcard-erp/internal/port"
)

const (
	mysqlDSN      = "root:root@tcp(localhost:3306)/jobcard?parseTime=true"
	redisAddr     = "localhost:6379"
	totalRequests = 50
	maxRetries    = 10
)

// Fires concurrent challan creates and checks every GRN number is distinct
// and that together they form one unbroken run.
func main() {
	ctx := context.Background()

	dsn := os.Getenv("MYSQL_DSN")
	if dsn == "" {
		dsn = mysqlDSN
	}
	db, err := storage.OpenMySQL(ctx, storage.MySQLConfig{DSN: dsn, MaxOpenConns: totalRequests})
	if err != nil {
		log.Fatalf("failed to connect mysql: %v", err)
	}
	defer db.Close()

	if _, err := storage.Migrate(db); err != nil {
		log.Fatalf("failed to migrate: %v", err)
	}

	var locker port.Locker
	if os.Getenv("STRESS_NO_REDIS") == "" {
		rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Printf("redis unavailable, running without grn lock: %v", err)
		} else {
			defer rdb.Close()
			locker = storage.NewRedisAdapter(rdb)
		}
	}

	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)

	svc := service.NewChallanService(storage.NewMySQLAdapter(db), locker, service.ChallanOptions{
		Options:    service.Options{OpTimeout: 30 * time.Second, RejectNonPositiveQty: true},
		LockTTL:    10 * time.Second,
		MaxRetries: maxRetries,
	}, logger)

	runID := uuid.NewString()

	var (
		successCount atomic.Int32
		failCount    atomic.Int32
		mu           sync.Mutex
		grns         []string
		wg           sync.WaitGroup
	)
	start := time.Now()

	for i := 0; i < totalRequests; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()

			name := fmt.Sprintf("stress-%s-%d", runID, n)
			created, err := svc.Create(ctx, domain.Challan{
				GRNNo:      "999",
				GRNDate:    domain.NewDate(2024, time.January, 1),
				SupplierID: 1,
				ItemID:     1,
				ItemName:   &name,
				Qty:        decimal.NewFromInt(1),
			})
			if err != nil {
				failCount.Add(1)
				log.Printf("create %d failed: %v", n, err)
				return
			}
			successCount.Add(1)
			mu.Lock()
			grns = append(grns, created.GRNNo)
			mu.Unlock()
		}(i)
	}

	wg.Wait()
	elapsed := time.Since(start)

	fmt.Println("========== GRN STRESS TEST RESULTS ==========")
	fmt.Printf("Run ID:           %s\n", runID)
	fmt.Printf("Lock:             %v\n", locker != nil)
	fmt.Printf("Total Requests:   %d\n", totalRequests)
	fmt.Printf("Successful:       %d\n", successCount.Load())
	fmt.Printf("Failed:           %d\n", failCount.Load())
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Println("=============================================")

	seen := make(map[string]bool, len(grns))
	nums := make([]int, 0, len(grns))
	for _, g := range grns {
		if seen[g] {
			fmt.Printf("FAIL: duplicate grn_no %s\n", g)
		}
		seen[g] = true
		n, err := strconv.Atoi(g)
		if err != nil {
			fmt.Printf("FAIL: non-numeric grn_no %q\n", g)
			continue
		}
		nums = append(nums, n)
	}
	sort.Ints(nums)

	if len(seen) == len(grns) && int(successCount.Load()) == totalRequests {
		fmt.Println("PASS: every request got a distinct grn_no")
	}
	if len(nums) > 0 && nums[len(nums)-1]-nums[0] == len(nums)-1 {
		fmt.Printf("PASS: grn_no run %s..%s has no gaps\n", domain.FormatGRN(uint64(nums[0])), domain.FormatGRN(uint64(nums[len(nums)-1])))
	} else if len(nums) > 0 {
		fmt.Println("FAIL: grn_no run has gaps")
	}

	if _, err := db.ExecContext(ctx, `DELETE FROM inward_lc_challan WHERE item_name LIKE ?`, "stress-"+runID+"-%"); err != nil {
		log.Printf("cleanup failed: %v", err)
	}
}
