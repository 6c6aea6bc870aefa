package backup

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/2beens/liftlog/internal/store"
	"github.com/2beens/liftlog/internal/telemetry/metrics"
	"github.com/2beens/liftlog/internal/telemetry/tracing"
	"github.com/2beens/liftlog/pkg"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
)

// requests larger than this are not plausible personal-tracker snapshots
const maxImportSize = 10 << 20

type Handler struct {
	kv        store.KV
	reloaders []func() error
	metrics   *metrics.Manager
}

// NewHandler wires the export/import endpoints. The reload callbacks are
// invoked, in order, after a successful import.
func NewHandler(kv store.KV, metrics *metrics.Manager, reloaders ...func() error) *Handler {
	return &Handler{
		kv:        kv,
		reloaders: reloaders,
		metrics:   metrics,
	}
}

func (handler *Handler) SetupRoutes(router *mux.Router) {
	router.HandleFunc("/export", handler.handleExport).Methods("GET", "OPTIONS").Name("backup-export")
	router.HandleFunc("/import", handler.handleImport).Methods("POST", "OPTIONS").Name("backup-import")
}

func (handler *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.backup.export")
	defer span.End()

	snapshot, err := Export(ctx, handler.kv)
	if err != nil {
		log.Errorf("backup export: %s", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	data, err := json.Marshal(snapshot)
	if err != nil {
		log.Errorf("backup export, marshal: %s", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	handler.metrics.CounterBackupExports.Inc()
	w.Header().Set("Content-Disposition", `attachment; filename="liftlog-backup.json"`)
	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, data, http.StatusOK)
}

func (handler *Handler) handleImport(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.backup.import")
	defer span.End()

	if contentType := r.Header.Get("Content-Type"); !strings.HasPrefix(contentType, "application/json") {
		http.Error(w, "invalid content type", http.StatusBadRequest)
		return
	}

	data, err := io.ReadAll(io.LimitReader(r.Body, maxImportSize))
	if err != nil {
		log.Errorf("backup import, read body: %s", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	if err := Import(ctx, handler.kv, data); err != nil {
		if errors.Is(err, ErrInvalidSnapshot) {
			http.Error(w, "invalid snapshot", http.StatusBadRequest)
			return
		}
		log.Errorf("backup import: %s", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	for _, reload := range handler.reloaders {
		if err := reload(); err != nil {
			log.Errorf("backup import, reload state: %s", err)
			http.Error(w, "imported, but state reload failed", http.StatusInternalServerError)
			return
		}
	}

	handler.metrics.CounterBackupImports.Inc()
	pkg.WriteTextResponseOK(w, "imported")
}
