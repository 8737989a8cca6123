package dispatch

// Last-resort route catalog served when both the native routes collection and
// the travel reconstruction come back empty. Curated with operations from the
// routes the Yumbo plant runs daily; kept deliberately small.

var staticRoutes = []Ruta{
	{
		Codigo:       "CHL-YMB-VAR",
		Nombre:       "Distribución Yumbo - Valle",
		Origen:       "PLANTA YUMBO",
		Destino:      "PLANTA YUMBO",
		Activa:       true,
		ViaPrincipal: "YUMBO-CENTRO",
		Vias:         []string{"YUMBO-CENTRO", "ACOPI", "MENGA"},
	},
	{
		Codigo:       "CHL-CLI-VAR",
		Nombre:       "Distribución Cali",
		Origen:       "PLANTA YUMBO",
		Destino:      "CALI",
		Activa:       true,
		ViaPrincipal: "SAMECO",
		Vias:         []string{"SAMECO", "CALI-NORTE", "CALI-SUR"},
	},
	{
		Codigo:  "PRU-PRU",
		Nombre:  "Ruta de prueba",
		Origen:  "PLANTA YUMBO",
		Destino: "PLANTA YUMBO",
		Activa:  false,
		Vias:    []string{"PRUEBA"},
	},
}

// staticFallbackRoutes returns the static routes passing the filter, with
// defensive copies of the slices so merges never mutate the catalog.
func staticFallbackRoutes(f RouteFilter, strictCity bool) []Ruta {
	var out []Ruta
	for _, r := range staticRoutes {
		if !matchesRouteFilter(r, f, strictCity) {
			continue
		}
		r.Vias = append([]string(nil), r.Vias...)
		r.ViasDetalle = append([]RutaVia(nil), r.ViasDetalle...)
		out = append(out, r)
	}
	return out
}
