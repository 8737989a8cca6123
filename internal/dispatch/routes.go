package dispatch

import (
	"github.com/go-chi/chi/v5"
)

// SetupRoutes wires the dispatch API surface.
func SetupRoutes() chi.Router {
	r := chi.NewRouter()

	r.Get("/clientes", ListClientes)
	r.Get("/clientes/{id}", GetCliente)
	r.Get("/clientes/{id}/resumen", GetResumen)

	r.Get("/sedes", ListSedes)
	r.Get("/sedes/{id}", GetSede)

	r.Get("/rutas", ListRutas)
	r.Get("/v2/rutas", ListRutasV2)

	r.Get("/vehiculos", ListVehiculos)
	r.Get("/personas", ListPersonas)

	r.Get("/cupo", GetCupo)

	r.Post("/programar", Programar)
	r.Get("/viajes/{id}", GetViaje)

	r.Post("/borradores", SaveBorrador)
	r.Get("/borradores", GetBorrador)

	// Kept for the first front-end build; new code uses /programar.
	r.Post("/schedule", LegacySchedule)

	return r
}
