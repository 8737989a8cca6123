package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"strings"

	"github.com/joho/godotenv"

	"github.com/CCMOperaciones/Dispatch-Backend/internal/dispatch/cloudfleet"
	"github.com/CCMOperaciones/Dispatch-Backend/internal/textnorm"
)

// Probes the CloudFleet travel mining end to end against the real API:
// prints the route-code candidates for a client/city pair and what each
// travels query actually returns. Useful when a client reports their routes
// missing from the planner.
func main() {
	godotenv.Load(".env.local")

	cliente := flag.String("cliente", "", "client display name")
	ciudad := flag.String("ciudad", "", "city filter")
	codigo := flag.String("codigo", "", "explicit route code (skips candidate generation)")
	pages := flag.Int("pages", 2, "max pages per travels query")
	flag.Parse()

	cfg := cloudfleet.LoadFromEnv()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("CloudFleet config error: %v", err)
	}
	cf := cloudfleet.NewClient(cfg)
	cf.Cache().Bypass = true // always probe live data
	ctx := context.Background()

	candidates := textnorm.RouteCodeCandidates(*cliente, *ciudad, *codigo)
	fmt.Printf("Candidates for cliente=%q ciudad=%q: %v\n\n", *cliente, *ciudad, candidates)

	for _, code := range candidates {
		travels, err := cf.Travels(ctx, cloudfleet.TravelQuery{RouteCode: code},
			cloudfleet.PageOptions{MaxPages: *pages})
		if err != nil {
			fmt.Printf("=== %s: ERROR %v\n\n", code, err)
			continue
		}
		fmt.Printf("=== %s (%d travels) ===\n", code, len(travels))
		for _, t := range travels {
			vias := make([]string, 0, len(t.Waypoints()))
			for _, v := range t.Waypoints() {
				vias = append(vias, v.Code)
			}
			fmt.Printf("  - #%s %s | %s -> %s | vias: %s\n",
				t.Number, t.ResolvedRouteCode(),
				t.Origin.Display(), t.Destination.Display(),
				strings.Join(vias, ","))
		}
		fmt.Println()
	}
}
