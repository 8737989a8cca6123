package dispatch

import (
	"log"

	"github.com/CCMOperaciones/Dispatch-Backend/internal/db"
	"github.com/CCMOperaciones/Dispatch-Backend/internal/dispatch/cloudfleet"
)

// CF is the process-wide CloudFleet client. Its throttle is global on
// purpose: every handler shares the same upstream rate budget.
var CF *cloudfleet.Client

// Init prepares the dispatch schema and the CloudFleet client. Must run
// after db.Connect.
func Init() {
	if err := db.EnsureSchema(db.DB, "dispatch"); err != nil {
		log.Fatal("Failed to ensure dispatch schema: ", err)
	}
	if err := db.DB.AutoMigrate(&Viaje{}, &ViajeDetalle{}, &Borrador{}); err != nil {
		log.Fatal("Failed to migrate dispatch tables: ", err)
	}

	cfg := cloudfleet.LoadFromEnv()
	if err := cfg.Validate(); err != nil {
		// Listings will degrade to empty until the token is set.
		log.Printf("[dispatch] CloudFleet not configured: %v", err)
	}
	CF = cloudfleet.NewClient(cfg)
	log.Println("[dispatch] Initialized")
}
