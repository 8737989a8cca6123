package dispatch

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/CCMOperaciones/Dispatch-Backend/internal/db"
)

// TestBorradorUpsert runs against a real database and verifies the DRAFT
// upsert contract: two saves for the same (cliente, sede, fecha) leave one
// row carrying the second payload.
func TestBorradorUpsert(t *testing.T) {
	if os.Getenv("DATABASE_URL") == "" {
		t.Skip("DATABASE_URL not set")
	}
	db.Connect()
	if err := db.EnsureSchema(db.DB, "dispatch"); err != nil {
		t.Fatal(err)
	}
	if err := db.DB.AutoMigrate(&Borrador{}); err != nil {
		t.Fatal(err)
	}

	clienteID := "test-upsert-cliente"
	t.Cleanup(func() {
		db.DB.Where("cliente_id = ?", clienteID).Delete(&Borrador{})
	})

	save := func(payload string) int {
		body := `{"clienteId":"` + clienteID + `","sedeId":"Y","fecha":"2025-01-01","payload":` + payload + `}`
		rec := httptest.NewRecorder()
		SaveBorrador(rec, httptest.NewRequest("POST", "/borradores", strings.NewReader(body)))
		return rec.Code
	}

	if code := save(`{"v":1}`); code != http.StatusCreated {
		t.Fatalf("first save status = %d, want 201", code)
	}
	if code := save(`{"v":2}`); code != http.StatusOK {
		t.Fatalf("second save status = %d, want 200 (update)", code)
	}

	var count int64
	db.DB.Model(&Borrador{}).
		Where("cliente_id = ? AND sede_id = ? AND fecha = ? AND estado = ?",
			clienteID, "Y", "2025-01-01", "DRAFT").
		Count(&count)
	if count != 1 {
		t.Fatalf("got %d DRAFT rows, want 1", count)
	}

	rec := httptest.NewRecorder()
	GetBorrador(rec, httptest.NewRequest("GET",
		"/borradores?clienteId="+clienteID+"&sedeId=Y&fecha=2025-01-01", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d, want 200", rec.Code)
	}
	var got Borrador
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(got.Payload, `"v":2`) {
		t.Errorf("payload = %q, want the second save's payload", got.Payload)
	}
}
