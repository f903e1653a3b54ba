/*
main.go - Offline stock verification and repair tool

PURPOSE:
  Walks every product, recomputes its quantity from the full donation and
  delivery history, and reports drift between the stored value and the
  history-derived one. With -apply it repairs the drift through the same
  atomic increment the live system uses.

  Run this against a quiesced database: the per-product checks are exact
  inside their transactions, but repairs against a live write stream can
  chase a moving target.

COMMAND-LINE FLAGS:
  -db       SQLite database path (default: registry.db)
  -product  Check a single product ID instead of all (default: 0 = all)
  -apply    Repair drift instead of only reporting it

EXAMPLES:
  # Report drift across all products
  ./rebuild -db=./data/registry.db

  # Repair one product
  ./rebuild -db=./data/registry.db -product=42 -apply

SEE ALSO:
  - ledger/verify.go: Verify and Rebuild
  - registry/service.go: the transactional wrappers used here
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/aidtrack/stock-engine/ledger"
	"github.com/aidtrack/stock-engine/registry"
	"github.com/aidtrack/stock-engine/store/sqlite"
)

func main() {
	dbPath := flag.String("db", "registry.db", "SQLite database path")
	product := flag.Int64("product", 0, "check a single product ID (0 = all)")
	apply := flag.Bool("apply", false, "repair drift instead of only reporting")
	flag.Parse()

	store, err := sqlite.New(*dbPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	svc := registry.New(store)

	var ids []ledger.ProductID
	if *product != 0 {
		ids = []ledger.ProductID{ledger.ProductID(*product)}
	} else {
		ids, err = store.ProductIDs(ctx)
		if err != nil {
			log.Fatalf("Failed to list products: %v", err)
		}
	}

	drifted := 0
	for _, id := range ids {
		r, err := svc.VerifyProduct(ctx, id)
		if err != nil {
			log.Fatalf("Failed to verify product %d: %v", id, err)
		}
		if r.Consistent() {
			continue
		}
		drifted++
		fmt.Printf("product %d: stored=%d computed=%d drift=%+d (donations=%d deliveries=%d)\n",
			r.Product, r.Stored, r.Computed, r.Drift(), r.Donations, r.Deliveries)

		if *apply {
			p, err := svc.RebuildProduct(ctx, id)
			if err != nil {
				log.Fatalf("Failed to rebuild product %d: %v", id, err)
			}
			fmt.Printf("product %d: repaired, quantity=%d\n", p.ID, p.Quantity)
		}
	}

	if drifted == 0 {
		fmt.Printf("checked %d products, all consistent\n", len(ids))
		return
	}
	if !*apply {
		fmt.Printf("%d of %d products drifted (run with -apply to repair)\n", drifted, len(ids))
		os.Exit(1)
	}
	fmt.Printf("repaired %d of %d products\n", drifted, len(ids))
}
