package dispatch

import (
	"encoding/json"
	"testing"
)

func vehiculosN(n int) []Vehiculo {
	out := make([]Vehiculo, n)
	for i := range out {
		out[i] = Vehiculo{ID: string(rune('a' + i)), Codigo: "VEH-" + string(rune('0'+i))}
	}
	return out
}

func personasN(prefix string, n int) []Persona {
	out := make([]Persona, n)
	for i := range out {
		out[i] = Persona{ID: prefix + string(rune('0'+i)), Nombre: prefix + " " + string(rune('0'+i))}
	}
	return out
}

// TestBuildAsignacionesDriverShortage is the scheduling contract: with a
// quota of 3, 5 vehicles and 2 drivers, exactly 2 slots get a driver and a
// vehicle, slot 2's driver is null, and vehicle index 2 lands in standby.
func TestBuildAsignacionesDriverShortage(t *testing.T) {
	vehiculos := vehiculosN(5)
	conductores := personasN("cond", 2)

	asigs, standby := buildAsignaciones(3, vehiculos, conductores, nil, nil)
	if len(asigs) != 3 {
		t.Fatalf("got %d slots, want 3", len(asigs))
	}

	for i := 0; i < 2; i++ {
		if asigs[i].ConductorID == nil || asigs[i].VehiculoID == nil {
			t.Errorf("slot %d should have driver and vehicle: %+v", i, asigs[i])
		}
	}
	if asigs[2].ConductorID != nil {
		t.Error("slot 2 must have a null driver")
	}
	if asigs[2].VehiculoID != nil {
		t.Error("slot 2 must not consume a vehicle without a driver")
	}

	if len(standby.Vehiculos) != 3 {
		t.Fatalf("standby vehicles = %v, want 3 entries", standby.Vehiculos)
	}
	if standby.Vehiculos[0] != vehiculos[2].Codigo {
		t.Errorf("vehicle index 2 (%s) should head standby, got %v",
			vehiculos[2].Codigo, standby.Vehiculos)
	}
	if len(standby.Conductores) != 0 {
		t.Errorf("no drivers left over, got standby %v", standby.Conductores)
	}
}

// TestBuildAsignacionesSurplus verifies standby reporting when resources
// exceed the quota.
func TestBuildAsignacionesSurplus(t *testing.T) {
	asigs, standby := buildAsignaciones(2, vehiculosN(4), personasN("cond", 3), personasN("aux", 3), nil)
	if len(asigs) != 2 {
		t.Fatalf("got %d slots, want 2", len(asigs))
	}
	for i, a := range asigs {
		if a.ConductorID == nil || a.VehiculoID == nil || a.AuxiliarID == nil {
			t.Errorf("slot %d should be fully staffed: %+v", i, a)
		}
	}
	if len(standby.Vehiculos) != 2 {
		t.Errorf("standby vehicles = %v, want 2", standby.Vehiculos)
	}
	if len(standby.Conductores) != 1 {
		t.Errorf("standby drivers = %v, want 1", standby.Conductores)
	}
	if len(standby.Auxiliares) != 1 {
		t.Errorf("standby assistants = %v, want 1", standby.Auxiliares)
	}
}

// TestBuildAsignacionesRouteRotation verifies round-robin route assignment
// and waypoint propagation into slots.
func TestBuildAsignacionesRouteRotation(t *testing.T) {
	rutas := []Ruta{
		{Codigo: "R1", Vias: []string{"V1"}},
		{Codigo: "R2"},
	}
	asigs, _ := buildAsignaciones(3, vehiculosN(3), personasN("cond", 3), nil, rutas)
	if *asigs[0].RutaCodigo != "R1" || *asigs[1].RutaCodigo != "R2" || *asigs[2].RutaCodigo != "R1" {
		t.Errorf("route rotation wrong: %v %v %v",
			*asigs[0].RutaCodigo, *asigs[1].RutaCodigo, *asigs[2].RutaCodigo)
	}
	if len(asigs[0].Vias) != 1 || asigs[0].Vias[0] != "V1" {
		t.Errorf("slot 0 vias = %v, want [V1]", asigs[0].Vias)
	}
}

// TestNormalizePayload verifies that a missing or null draft payload is
// stored as an empty object instead of reaching the jsonb column as "".
func TestNormalizePayload(t *testing.T) {
	cases := map[string]string{
		"":                 "{}",
		"  ":               "{}",
		"null":             "{}",
		" null ":           "{}",
		`{"v":1}`:          `{"v":1}`,
		`  {"v":1}  `:      `{"v":1}`,
		`[1,2]`:            `[1,2]`,
	}
	for in, want := range cases {
		if got := normalizePayload(json.RawMessage(in)); got != want {
			t.Errorf("normalizePayload(%q) = %q, want %q", in, got, want)
		}
	}
}

// TestBuildAsignacionesEmpty covers the degenerate inputs.
func TestBuildAsignacionesEmpty(t *testing.T) {
	asigs, standby := buildAsignaciones(0, vehiculosN(2), nil, nil, nil)
	if len(asigs) != 0 {
		t.Errorf("quota 0 should produce no slots, got %d", len(asigs))
	}
	if len(standby.Vehiculos) != 2 {
		t.Errorf("all vehicles should be standby, got %v", standby.Vehiculos)
	}

	asigs, _ = buildAsignaciones(-1, nil, nil, nil, nil)
	if len(asigs) != 0 {
		t.Errorf("negative quota should produce no slots, got %d", len(asigs))
	}

	asigs, standby = buildAsignaciones(2, nil, nil, nil, nil)
	if len(asigs) != 2 {
		t.Fatalf("empty resources still produce open slots, got %d", len(asigs))
	}
	for _, a := range asigs {
		if a.ConductorID != nil || a.VehiculoID != nil || a.AuxiliarID != nil {
			t.Errorf("open slot should be all nil: %+v", a)
		}
	}
	if len(standby.Vehiculos) != 0 || len(standby.Conductores) != 0 {
		t.Errorf("nothing to put in standby, got %+v", standby)
	}
}
