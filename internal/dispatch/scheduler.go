package dispatch

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"os"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"

	"github.com/CCMOperaciones/Dispatch-Backend/internal/db"
	"github.com/CCMOperaciones/Dispatch-Backend/internal/dispatch/cloudfleet"
	"github.com/CCMOperaciones/Dispatch-Backend/internal/quota"
	"github.com/CCMOperaciones/Dispatch-Backend/internal/textnorm"
)

// Asignacion is one trip slot in an auto-schedule run. Unfilled slots carry
// nils on purpose; the planner completes them by hand.
type Asignacion struct {
	Orden       int      `json:"orden"`
	RutaCodigo  *string  `json:"rutaCodigo"`
	VehiculoID  *string  `json:"vehiculoId"`
	Vehiculo    *string  `json:"vehiculo"`
	ConductorID *string  `json:"conductorId"`
	Conductor   *string  `json:"conductor"`
	AuxiliarID  *string  `json:"auxiliarId"`
	Auxiliar    *string  `json:"auxiliar"`
	Vias        []string `json:"vias,omitempty"`
}

// Standby lists the resources available but not assigned in a run.
type Standby struct {
	Vehiculos   []string `json:"vehiculos"`
	Conductores []string `json:"conductores"`
	Auxiliares  []string `json:"auxiliares"`
}

// buildAsignaciones is the greedy index-by-index assignment core: slot i gets
// driver i, assistant i and route (i mod routes). A slot consumes a vehicle
// only when it has a driver; a vehicle without a driver stays in standby.
func buildAsignaciones(cupo int, vehiculos []Vehiculo, conductores, auxiliares []Persona, rutas []Ruta) ([]Asignacion, Standby) {
	if cupo < 0 {
		cupo = 0
	}
	asignaciones := make([]Asignacion, 0, cupo)
	for i := 0; i < cupo; i++ {
		a := Asignacion{Orden: i}
		if len(rutas) > 0 {
			rt := rutas[i%len(rutas)]
			a.RutaCodigo = &rt.Codigo
			a.Vias = rt.Vias
		}
		if i < len(conductores) {
			a.ConductorID = &conductores[i].ID
			a.Conductor = &conductores[i].Nombre
			if i < len(vehiculos) {
				a.VehiculoID = &vehiculos[i].ID
				a.Vehiculo = &vehiculos[i].Codigo
			}
		}
		if i < len(auxiliares) {
			a.AuxiliarID = &auxiliares[i].ID
			a.Auxiliar = &auxiliares[i].Nombre
		}
		asignaciones = append(asignaciones, a)
	}

	usados := cupo
	if len(conductores) < usados {
		usados = len(conductores)
	}
	if len(vehiculos) < usados {
		usados = len(vehiculos)
	}
	standby := Standby{Vehiculos: []string{}, Conductores: []string{}, Auxiliares: []string{}}
	for _, v := range vehiculos[usados:] {
		standby.Vehiculos = append(standby.Vehiculos, v.Codigo)
	}
	nConductores := cupo
	if len(conductores) < nConductores {
		nConductores = len(conductores)
	}
	for _, c := range conductores[nConductores:] {
		standby.Conductores = append(standby.Conductores, c.Nombre)
	}
	nAuxiliares := cupo
	if len(auxiliares) < nAuxiliares {
		nAuxiliares = len(auxiliares)
	}
	for _, a := range auxiliares[nAuxiliares:] {
		standby.Auxiliares = append(standby.Auxiliares, a.Nombre)
	}
	return asignaciones, standby
}

// ProgramarRequest is the auto-schedule input. Cupo 0 falls back to the quota
// table's value for the client/site/date.
type ProgramarRequest struct {
	ClienteID string `json:"clienteId"`
	Cliente   string `json:"cliente"`
	SedeID    string `json:"sedeId"`
	Sede      string `json:"sede"`
	Ciudad    string `json:"ciudad"`
	Fecha     string `json:"fecha"`
	Cupo      int    `json:"cupo"`
	Persistir bool   `json:"persistir"`
}

// Programar runs the greedy auto-schedule for a site and date, optionally
// persisting the result as a draft trip with one detail row per slot.
// Persistence is transactional: a failed write rolls everything back and the
// full failure detail goes to the caller.
func Programar(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req ProgramarRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Cuerpo inválido: "+err.Error())
		return
	}
	if req.Fecha == "" {
		writeError(w, http.StatusBadRequest, "fecha es requerida")
		return
	}
	if req.Cliente == "" {
		req.Cliente = clienteNombre(ctx, req.ClienteID)
	}
	if req.Cupo <= 0 {
		req.Cupo = quota.ForDate(req.Cliente, req.Sede, req.Fecha)
	}

	upstreamID := ""
	if idUsableUpstream(req.ClienteID) {
		upstreamID = req.ClienteID
	}

	ciudad := req.Ciudad
	if ciudad == "" {
		ciudad = req.Sede
	}

	vehicles, err := CF.Vehicles(ctx, cloudfleet.VehicleFilter{CustomerID: upstreamID})
	var vehiculos []Vehiculo
	for _, v := range degraded("vehicles for scheduling", vehicles, err) {
		if !v.Active || vehicleTypeExcluded(v.Type) {
			continue
		}
		if ciudad != "" && !textnorm.MatchCity(ciudad, v.City) {
			continue
		}
		if req.ClienteID != "" && upstreamID == "" && !vehicleBelongsToClient(v, req.ClienteID, nil) {
			continue
		}
		vehiculos = append(vehiculos, vehiculoFromVehicle(v))
	}

	people, err := CF.People(ctx)
	var conductores, auxiliares []Persona
	for _, p := range degraded("people for scheduling", people, err) {
		if !p.Active || textnorm.LooksCorporate(p.Name) {
			continue
		}
		if ciudad != "" && !textnorm.MatchCity(ciudad, p.City) {
			continue
		}
		switch {
		case strings.Contains(strings.ToUpper(p.Role), "CONDUCTOR"):
			conductores = append(conductores, personaFromPerson(p))
		case strings.Contains(strings.ToUpper(p.Role), "AUXILIAR"):
			auxiliares = append(auxiliares, personaFromPerson(p))
		}
	}

	rutas := listRoutes(ctx, CF, RouteFilter{
		ClienteID:     req.ClienteID,
		ClienteNombre: req.Cliente,
		Ciudad:        ciudad,
	}, true)

	asignaciones, standby := buildAsignaciones(req.Cupo, vehiculos, conductores, auxiliares, rutas)

	resp := map[string]any{
		"fecha":        req.Fecha,
		"cupo":         req.Cupo,
		"asignaciones": asignaciones,
		"standby":      standby,
	}

	if req.Persistir {
		viaje := Viaje{
			ID:        uuid.NewString(),
			ClienteID: req.ClienteID,
			SedeID:    req.SedeID,
			Fecha:     req.Fecha,
			Estado:    "borrador",
		}
		err := db.DB.Transaction(func(tx *gorm.DB) error {
			if err := tx.Create(&viaje).Error; err != nil {
				return err
			}
			for _, a := range asignaciones {
				detalle := ViajeDetalle{
					ID:          uuid.NewString(),
					ViajeID:     viaje.ID,
					Orden:       a.Orden,
					RutaCodigo:  a.RutaCodigo,
					VehiculoID:  a.VehiculoID,
					ConductorID: a.ConductorID,
					AuxiliarID:  a.AuxiliarID,
					Vias:        pq.StringArray(a.Vias),
				}
				if err := tx.Create(&detalle).Error; err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			log.Printf("[dispatch] Schedule persistence failed, rolled back: %v", err)
			writeError(w, http.StatusInternalServerError, "Error guardando programación: "+err.Error())
			return
		}
		resp["viajeId"] = viaje.ID
	}

	writeJSON(w, http.StatusOK, resp)
}

// BorradorRequest is the draft-save input.
type BorradorRequest struct {
	ClienteID string          `json:"clienteId"`
	SedeID    string          `json:"sedeId"`
	Fecha     string          `json:"fecha"`
	Payload   json.RawMessage `json:"payload"`
}

// normalizePayload coerces an absent or blank draft payload to an empty JSON
// object; the jsonb column rejects the empty string.
func normalizePayload(raw json.RawMessage) string {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return "{}"
	}
	return s
}

// SaveBorrador upserts a draft for (cliente, sede, fecha): an existing DRAFT
// row gets its payload replaced, otherwise a new row is inserted. There is no
// optimistic lock; two near-simultaneous saves of the same draft can lose the
// earlier one.
func SaveBorrador(w http.ResponseWriter, r *http.Request) {
	var req BorradorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Cuerpo inválido: "+err.Error())
		return
	}
	if req.ClienteID == "" || req.SedeID == "" || req.Fecha == "" {
		writeError(w, http.StatusBadRequest, "clienteId, sedeId y fecha son requeridos")
		return
	}
	payload := normalizePayload(req.Payload)

	var existing Borrador
	err := db.DB.
		Where("cliente_id = ? AND sede_id = ? AND fecha = ? AND estado = ?",
			req.ClienteID, req.SedeID, req.Fecha, "DRAFT").
		First(&existing).Error

	switch {
	case err == nil:
		existing.Payload = payload
		if err := db.DB.Save(&existing).Error; err != nil {
			writeError(w, http.StatusInternalServerError, "Error actualizando borrador: "+err.Error())
			return
		}
		writeJSON(w, http.StatusOK, existing)
	case errors.Is(err, gorm.ErrRecordNotFound):
		nuevo := Borrador{
			ID:        uuid.NewString(),
			ClienteID: req.ClienteID,
			SedeID:    req.SedeID,
			Fecha:     req.Fecha,
			Estado:    "DRAFT",
			Payload:   payload,
		}
		if err := db.DB.Create(&nuevo).Error; err != nil {
			writeError(w, http.StatusInternalServerError, "Error creando borrador: "+err.Error())
			return
		}
		writeJSON(w, http.StatusCreated, nuevo)
	default:
		writeError(w, http.StatusInternalServerError, "Error consultando borrador: "+err.Error())
	}
}

// GetBorrador fetches the active draft for (cliente, sede, fecha).
func GetBorrador(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	clienteID := q.Get("clienteId")
	sedeID := q.Get("sedeId")
	fecha := q.Get("fecha")
	if clienteID == "" || sedeID == "" || fecha == "" {
		writeError(w, http.StatusBadRequest, "clienteId, sedeId y fecha son requeridos")
		return
	}

	var b Borrador
	err := db.DB.
		Where("cliente_id = ? AND sede_id = ? AND fecha = ? AND estado = ?",
			clienteID, sedeID, fecha, "DRAFT").
		First(&b).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		writeError(w, http.StatusNotFound, "Borrador no encontrado")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Error consultando borrador: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// GetViaje fetches one persisted trip with its detail rows.
func GetViaje(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var viaje Viaje
	err := db.DB.Preload("Detalles").First(&viaje, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		writeError(w, http.StatusNotFound, "Viaje no encontrado")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Error consultando viaje: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, viaje)
}

// LegacySchedule is the mock scheduling endpoint the first front-end build
// shipped against. With SCHEDULER_STRICT set, a CloudFleet failure is a hard
// 502; otherwise it degrades to a fixed two-assignment dummy response.
func LegacySchedule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	strict := os.Getenv("SCHEDULER_STRICT") == "true" || os.Getenv("SCHEDULER_STRICT") == "1"

	vehicles, err := CF.Vehicles(ctx, cloudfleet.VehicleFilter{})
	if err != nil || len(vehicles) == 0 {
		if strict {
			writeError(w, http.StatusBadGateway, "CloudFleet no disponible")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"source": "dummy",
			"asignaciones": []map[string]any{
				{"orden": 0, "vehiculo": "VEH-001", "conductor": "Conductor 1"},
				{"orden": 1, "vehiculo": "VEH-002", "conductor": "Conductor 2"},
			},
		})
		return
	}

	n := 2
	if len(vehicles) < n {
		n = len(vehicles)
	}
	asignaciones := make([]map[string]any, 0, n)
	for i := 0; i < n; i++ {
		asignaciones = append(asignaciones, map[string]any{
			"orden":    i,
			"vehiculo": vehicles[i].Code,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"source":       "cloudfleet",
		"asignaciones": asignaciones,
	})
}
