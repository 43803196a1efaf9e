package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/triage-cli/internal/ingest"
	"github.com/sells-group/triage-cli/internal/model"
	"github.com/sells-group/triage-cli/internal/pipeline"
	"github.com/sells-group/triage-cli/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start HTTP server for inquiry file submission and batch inspection",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		if err := os.MkdirAll(cfg.Server.UploadDir, 0o755); err != nil {
			return eris.Wrap(err, "create upload dir")
		}

		r := chi.NewRouter()
		r.Use(middleware.RequestID)
		r.Use(middleware.Recoverer)
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "POST", "DELETE"},
			AllowedHeaders: []string{"Content-Type"},
		}))

		r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})

		r.Post("/process-file", handleProcessFile(ctx, env))
		r.Get("/entries", handleListEntries(env.Store))
		r.Get("/leads", handleListLeads(env.Store))
		r.Get("/edge-cases", handleListEdgeCases(env.Store))
		r.Get("/batches/{fileID}", handleBatchStatus(env.Store))
		r.Delete("/batches/{fileID}", handlePurgeBatch(env.Store))

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: r,
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			srv.Shutdown(ctx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

// handleProcessFile accepts a multipart file upload, stores it under the
// upload dir, and runs the pipeline to completion before responding. A
// stage failure maps to a 400 naming the failed stage, so callers see
// which classifier contract broke. runCtx outlives the request so a
// client disconnect does not abort classifier calls mid-stage; server
// shutdown still cancels the run.
func handleProcessFile(runCtx context.Context, env *pipelineEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			writeError(w, http.StatusBadRequest, "invalid multipart form")
			return
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			writeError(w, http.StatusBadRequest, "file field is required")
			return
		}
		defer file.Close()

		name := filepath.Base(header.Filename)
		ext := filepath.Ext(name)
		if ext != ".json" && ext != ".txt" {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("unsupported file extension %q (want .json or .txt)", ext))
			return
		}

		dst := filepath.Join(cfg.Server.UploadDir, name)
		out, err := os.Create(dst)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "save upload")
			return
		}
		if _, err := io.Copy(out, file); err != nil {
			out.Close()
			writeError(w, http.StatusInternalServerError, "save upload")
			return
		}
		out.Close()

		fileID, records, err := ingest.ReadFile(dst, cfg.Pipeline.EntryTextMaxSize)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		exists, err := env.Store.HasBatch(r.Context(), fileID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if exists {
			writeError(w, http.StatusConflict, fmt.Sprintf("file_id %q already exists; delete the batch first to reprocess", fileID))
			return
		}

		result, err := env.Pipeline.Run(runCtx, fileID, records)
		if err != nil {
			zap.L().Error("triage failed",
				zap.String("file_id", fileID),
				zap.Error(err),
			)
			if se, ok := pipeline.AsStageError(err); ok {
				writeJSON(w, http.StatusBadRequest, map[string]string{
					"error": se.Error(),
					"stage": string(se.Stage),
					"kind":  string(se.Kind),
				})
				return
			}
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		zap.L().Info("triage complete",
			zap.String("file_id", fileID),
			zap.Int("leads", result.Leads),
			zap.Float64("mean_accuracy", result.MeanAccuracy),
		)
		writeJSON(w, http.StatusOK, result)
	}
}

func handleListEntries(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filter := store.EntryFilter{
			FileID: r.URL.Query().Get("file_id"),
			Status: model.EntryStatus(r.URL.Query().Get("status")),
		}
		if filter.Status != "" && filter.Status != model.EntryStatusPending && !model.ValidEntryStatus(filter.Status) {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid status %q", filter.Status))
			return
		}
		entries, err := st.ListEntries(r.Context(), filter)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"entries": entries, "count": len(entries)})
	}
}

func handleListLeads(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		leads, err := st.ListLeadsWithEntries(r.Context(), r.URL.Query().Get("file_id"))
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"leads": leads, "count": len(leads)})
	}
}

func handleListEdgeCases(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cases, err := st.ListEdgeCases(r.Context(), r.URL.Query().Get("file_id"))
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"edge_cases": cases, "count": len(cases)})
	}
}

// batchStatus aggregates everything known about one batch.
type batchStatus struct {
	FileID    string               `json:"file_id"`
	Entries   int                  `json:"entries"`
	Leads     int                  `json:"leads"`
	EdgeCases int                  `json:"edge_cases"`
	Stages    map[model.Stage]bool `json:"stages"`
}

func handleBatchStatus(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		fileID := chi.URLParam(r, "fileID")

		exists, err := st.HasBatch(r.Context(), fileID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if !exists {
			writeError(w, http.StatusNotFound, fmt.Sprintf("batch %q not found", fileID))
			return
		}

		status := batchStatus{FileID: fileID}
		g, ctx := errgroup.WithContext(r.Context())
		g.Go(func() error {
			entries, err := st.ListEntries(ctx, store.EntryFilter{FileID: fileID})
			status.Entries = len(entries)
			return err
		})
		g.Go(func() error {
			leads, err := st.ListLeads(ctx, fileID)
			status.Leads = len(leads)
			return err
		})
		g.Go(func() error {
			cases, err := st.ListEdgeCases(ctx, fileID)
			status.EdgeCases = len(cases)
			return err
		})
		g.Go(func() error {
			stages, err := st.CompletedStages(ctx, fileID)
			status.Stages = stages
			return err
		})
		if err := g.Wait(); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		writeJSON(w, http.StatusOK, status)
	}
}

func handlePurgeBatch(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		fileID := chi.URLParam(r, "fileID")

		exists, err := st.HasBatch(r.Context(), fileID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if !exists {
			writeError(w, http.StatusNotFound, fmt.Sprintf("batch %q not found", fileID))
			return
		}

		if err := st.PurgeBatch(r.Context(), fileID); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "purged", "file_id": fileID})
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
