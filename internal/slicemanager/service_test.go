package slicemanager

import (
	"bytes"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/joyastack/joyastack/internal/database/queries"
	"github.com/joyastack/joyastack/internal/shared/config"
)

func uploadRequest(t *testing.T, field, filename string) *http.Request {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile(field, filename)
	if err != nil {
		t.Fatalf("failed to build multipart body: %v", err)
	}
	if _, err := fw.Write([]byte("disk-image-bytes")); err != nil {
		t.Fatalf("failed to write multipart body: %v", err)
	}
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/images/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestUploadImageValidation(t *testing.T) {
	s := &Service{
		logger: slog.New(slog.NewTextHandler(&strings.Builder{}, nil)),
		config: &config.SliceManagerConfig{},
	}

	rec := httptest.NewRecorder()
	s.handleUploadImage(rec, uploadRequest(t, "file", "ubuntu image.img"))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("spaced filename: status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	s.handleUploadImage(rec, uploadRequest(t, "attachment", "ubuntu.img"))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing file field: status = %d", rec.Code)
	}
}

func TestNewVMView(t *testing.T) {
	vm := queries.Vm{
		ID:            37,
		Name:          "web",
		Cpu:           2,
		Ram:           512,
		Disk:          5,
		NumInterfaces: 2,
		State:         queries.VmStateDeployed,
		WorkerID:      pgtype.Int4{Int32: 2, Valid: true},
		Pid:           pgtype.Int4{Int32: 4321, Valid: true},
		VncPort:       pgtype.Int4{Int32: 20537, Valid: true},
	}

	v := newVMView(vm)
	if v.ImageID != nil {
		t.Fatalf("expected nil image id, got %v", *v.ImageID)
	}
	if v.WorkerID == nil || *v.WorkerID != 2 {
		t.Fatalf("worker id = %v", v.WorkerID)
	}
	if v.PID == nil || *v.PID != 4321 {
		t.Fatalf("pid = %v", v.PID)
	}
	if v.VNCPort == nil || *v.VNCPort != 20537 {
		t.Fatalf("vnc port = %v", v.VNCPort)
	}

	pending := newVMView(queries.Vm{ID: 38, Name: "db", State: queries.VmStatePending})
	if pending.WorkerID != nil || pending.PID != nil || pending.VNCPort != nil {
		t.Fatalf("pending VM carries deploy fields: %+v", pending)
	}
}
