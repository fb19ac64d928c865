package main

import (
	"fmt"
	"log"

	"github.com/tracevia/cmmsgo/internal/config"
	"github.com/tracevia/cmmsgo/internal/database"
	"github.com/tracevia/cmmsgo/internal/models"
	"github.com/tracevia/cmmsgo/internal/store"
)

// Seeds the local cache with demo CMMS data so the UI can be exercised
// without a reachable remote API.
func main() {
	fmt.Println("🌱 CMMS Agent Demo Data Seeder")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("❌ Failed to load config: %v", err)
	}

	db, err := database.Connect(&cfg.Database)
	if err != nil {
		log.Fatalf("❌ Failed to open local store: %v", err)
	}
	defer db.Close()

	if err := db.AutoMigrate(); err != nil {
		log.Fatalf("❌ Migration failed: %v", err)
	}
	fmt.Println("✅ Local store ready")

	var count int64
	db.Model(&models.CachedRecord{}).Count(&count)
	if count > 0 {
		fmt.Printf("⚠️  Store already has %d records. Clear it first? (y/N): ", count)
		var answer string
		fmt.Scanln(&answer)
		if answer != "y" && answer != "Y" {
			fmt.Println("❌ Aborted. Store not modified.")
			return
		}
		db.Exec("DELETE FROM cached_records")
		db.Exec("DELETE FROM outbox_entries")
		db.Exec("DELETE FROM conflict_items")
		db.Exec("DELETE FROM sync_watermarks")
		fmt.Println("✅ Store cleared")
	}

	st := store.New(db)
	seed := func(entityType, id string, payload interface{}) {
		rec := &models.CachedRecord{
			EntityType: entityType,
			EntityID:   id,
			SyncStatus: models.SyncStatusSynced,
		}
		if err := rec.SetPayload(payload); err != nil {
			log.Fatalf("❌ Failed to encode %s/%s: %v", entityType, id, err)
		}
		if err := st.Put(rec); err != nil {
			log.Fatalf("❌ Failed to seed %s/%s: %v", entityType, id, err)
		}
	}

	fmt.Println("📍 Creating locations...")
	seed("locations", "loc-hq", models.Location{ID: "loc-hq", Name: "Main Plant", Address: "14 Industrieweg"})
	seed("locations", "loc-line-1", models.Location{ID: "loc-line-1", Name: "Packaging Line 1", ParentID: "loc-hq"})
	seed("locations", "loc-boiler", models.Location{ID: "loc-boiler", Name: "Boiler Room", ParentID: "loc-hq"})

	fmt.Println("🏭 Creating assets...")
	seed("assets", "asset-pump-1", models.Asset{ID: "asset-pump-1", Name: "Feed Pump 1", Model: "GX-200", SerialNumber: "SN-40112", LocationID: "loc-boiler", Status: "operational", Criticality: "high"})
	seed("assets", "asset-conveyor-1", models.Asset{ID: "asset-conveyor-1", Name: "Conveyor Belt A", LocationID: "loc-line-1", Status: "operational"})
	seed("assets", "asset-compressor", models.Asset{ID: "asset-compressor", Name: "Air Compressor", LocationID: "loc-boiler", Status: "down", Criticality: "medium"})

	fmt.Println("🔩 Creating parts...")
	seed("parts", "part-vbelt", models.Part{ID: "part-vbelt", Name: "V-Belt 1250mm", SKU: "VB-1250", Quantity: 2, MinQuantity: 5, LocationID: "loc-hq"})
	seed("parts", "part-bearing", models.Part{ID: "part-bearing", Name: "Bearing 6204", SKU: "BR-6204", Quantity: 24, MinQuantity: 8, LocationID: "loc-hq"})
	seed("parts", "part-filter", models.Part{ID: "part-filter", Name: "Oil Filter", SKU: "OF-77", Quantity: 3, MinQuantity: 3, LocationID: "loc-hq"})

	fmt.Println("👤 Creating users...")
	seed("users", "user-mo", models.User{ID: "user-mo", Name: "Mo Berger", Email: "mo@example.com", Role: "technician"})
	seed("users", "user-kim", models.User{ID: "user-kim", Name: "Kim Adler", Email: "kim@example.com", Role: "manager"})

	fmt.Println("🛠 Creating work orders...")
	seed("work_orders", "wo-1001", models.WorkOrder{ID: "wo-1001", Title: "Compressor not building pressure", Status: "in_progress", Priority: "high", AssetID: "asset-compressor", LocationID: "loc-boiler", AssignedTo: "user-mo", PartIDs: []string{"part-filter"}})
	seed("work_orders", "wo-1002", models.WorkOrder{ID: "wo-1002", Title: "Monthly conveyor inspection", Status: "open", Priority: "medium", AssetID: "asset-conveyor-1", LocationID: "loc-line-1", AssignedTo: "user-mo"})

	seed("work_order_steps", "step-1", models.WorkOrderStep{ID: "step-1", WorkOrderID: "wo-1001", Sequence: 1, Title: "Lock out power", Done: true, CompletedBy: "user-mo"})
	seed("work_order_steps", "step-2", models.WorkOrderStep{ID: "step-2", WorkOrderID: "wo-1001", Sequence: 2, Title: "Replace oil filter", Done: false})
	seed("work_order_steps", "step-3", models.WorkOrderStep{ID: "step-3", WorkOrderID: "wo-1001", Sequence: 3, Title: "Pressure test", Done: false})

	fmt.Println()
	fmt.Println("✅ Demo data seeded")
}
