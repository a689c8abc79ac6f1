package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/carescribe/carescribe/internal/clientstore"
	"github.com/carescribe/carescribe/internal/pipeline"
	"github.com/carescribe/carescribe/internal/reportstore"
	"github.com/carescribe/carescribe/internal/transcriptstore"
)

// ownerHeader carries the care manager's identity. Authentication happens
// upstream; the server trusts this header.
const ownerHeader = "X-Owner-ID"

// maxUploadBytes caps a single conversation upload.
const maxUploadBytes = 50 << 20 // 50 MiB

// Runner is the pipeline capability the API depends on.
type Runner interface {
	Run(ctx context.Context, in pipeline.Input) (*pipeline.Result, error)
}

// Handler implements the CareScribe API endpoints.
type Handler struct {
	runner      Runner
	transcripts transcriptstore.Store
	reports     reportstore.Store
	clients     clientstore.Store
	logger      *slog.Logger
	newID       func() string
}

// NewHandler creates a [Handler] over the given pipeline and stores.
func NewHandler(runner Runner, transcripts transcriptstore.Store, reports reportstore.Store, clients clientstore.Store, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		runner:      runner,
		transcripts: transcripts,
		reports:     reports,
		clients:     clients,
		logger:      logger,
		newID:       uuid.NewString,
	}
}

// conversationRequest is the JSON body for text-only conversation
// submission.
type conversationRequest struct {
	Text string `json:"text"`
}

// CreateConversation accepts one recorded or typed conversation and runs it
// through the pipeline. Audio arrives as multipart/form-data with an
// "audio" file part (plus optional "codec" and "sample_rate" fields); typed
// text arrives as a JSON body. The response is the composite per-stage
// result, returned with 200 even when individual stages failed.
func (h *Handler) CreateConversation(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.owner(w, r)
	if !ok {
		return
	}

	in := pipeline.Input{OwnerID: ownerID}

	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unrecognised Content-Type")
		return
	}

	switch {
	case mediaType == "multipart/form-data":
		if err := h.readAudioForm(r, &in); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	case mediaType == "application/json":
		var req conversationRequest
		if err := json.NewDecoder(io.LimitReader(r.Body, maxUploadBytes)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "malformed JSON body")
			return
		}
		in.Text = req.Text
	default:
		writeError(w, http.StatusUnsupportedMediaType, "expected multipart/form-data or application/json")
		return
	}

	result, err := h.runner.Run(r.Context(), in)
	if err != nil {
		if errors.Is(err, pipeline.ErrEmptyInput) || errors.Is(err, pipeline.ErrMissingOwner) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error("pipeline run rejected", "error", err, "owner_id", ownerID)
		writeError(w, http.StatusInternalServerError, "pipeline run failed")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// readAudioForm populates in from a multipart upload.
func (h *Handler) readAudioForm(r *http.Request, in *pipeline.Input) error {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		return errors.New("malformed multipart body")
	}
	file, header, err := r.FormFile("audio")
	if err != nil {
		return errors.New(`missing "audio" file part`)
	}
	defer file.Close()

	audio, err := io.ReadAll(io.LimitReader(file, maxUploadBytes))
	if err != nil {
		return errors.New("reading audio part failed")
	}

	in.Audio = audio
	in.AudioName = header.Filename
	in.Codec = r.FormValue("codec")
	if in.Codec == "" {
		in.Codec = codecFromFilename(header.Filename)
	}
	if v := r.FormValue("sample_rate"); v != "" {
		rate, err := strconv.Atoi(v)
		if err != nil || rate < 0 {
			return errors.New(`invalid "sample_rate" field`)
		}
		in.SampleRate = rate
	}
	return nil
}

// codecFromFilename guesses the codec from the upload's file extension.
func codecFromFilename(name string) string {
	if i := strings.LastIndexByte(name, '.'); i >= 0 && i < len(name)-1 {
		return strings.ToLower(name[i+1:])
	}
	return ""
}

// ListTranscriptions returns the owner's transcripts, newest first.
func (h *Handler) ListTranscriptions(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.owner(w, r)
	if !ok {
		return
	}
	list, err := h.transcripts.ListByOwner(r.Context(), ownerID)
	if err != nil {
		h.storeError(w, r, "listing transcriptions", err)
		return
	}
	writeJSON(w, http.StatusOK, listBody(list))
}

// GetTranscription returns one transcript by ID.
func (h *Handler) GetTranscription(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.owner(w, r)
	if !ok {
		return
	}
	tr, err := h.transcripts.Get(r.Context(), ownerID, chi.URLParam(r, "id"))
	if err != nil {
		h.storeError(w, r, "loading transcription", err)
		return
	}
	if tr == nil {
		writeError(w, http.StatusNotFound, "transcription not found")
		return
	}
	writeJSON(w, http.StatusOK, tr)
}

// CreateReport stores a manually entered care-plan report, outside the
// extraction pipeline. The ID is generated server-side and the owner comes
// from the header; values for them in the body are ignored.
func (h *Handler) CreateReport(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.owner(w, r)
	if !ok {
		return
	}

	var report reportstore.Report
	if err := json.NewDecoder(io.LimitReader(r.Body, maxUploadBytes)).Decode(&report); err != nil {
		writeError(w, http.StatusBadRequest, "malformed JSON body")
		return
	}
	report.ID = h.newID()
	report.OwnerID = ownerID

	if err := h.reports.Create(r.Context(), &report); err != nil {
		if errors.Is(err, reportstore.ErrInvalid) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.storeError(w, r, "creating report", err)
		return
	}
	writeJSON(w, http.StatusCreated, &report)
}

// ListReports returns the owner's care-plan reports, newest first.
func (h *Handler) ListReports(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.owner(w, r)
	if !ok {
		return
	}
	list, err := h.reports.ListByOwner(r.Context(), ownerID)
	if err != nil {
		h.storeError(w, r, "listing reports", err)
		return
	}
	writeJSON(w, http.StatusOK, listBody(list))
}

// GetReport returns one care-plan report by ID.
func (h *Handler) GetReport(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.owner(w, r)
	if !ok {
		return
	}
	report, err := h.reports.Get(r.Context(), ownerID, chi.URLParam(r, "id"))
	if err != nil {
		h.storeError(w, r, "loading report", err)
		return
	}
	if report == nil {
		writeError(w, http.StatusNotFound, "report not found")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// UpdateReport replaces a report's content. The ID and owner come from the
// URL and header; values for them in the body are ignored.
func (h *Handler) UpdateReport(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.owner(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")

	existing, err := h.reports.Get(r.Context(), ownerID, id)
	if err != nil {
		h.storeError(w, r, "loading report", err)
		return
	}
	if existing == nil {
		writeError(w, http.StatusNotFound, "report not found")
		return
	}

	var report reportstore.Report
	if err := json.NewDecoder(io.LimitReader(r.Body, maxUploadBytes)).Decode(&report); err != nil {
		writeError(w, http.StatusBadRequest, "malformed JSON body")
		return
	}
	report.ID = id
	report.OwnerID = ownerID

	if err := h.reports.Update(r.Context(), &report); err != nil {
		if errors.Is(err, reportstore.ErrInvalid) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.storeError(w, r, "updating report", err)
		return
	}

	updated, err := h.reports.Get(r.Context(), ownerID, id)
	if err != nil || updated == nil {
		h.storeError(w, r, "reloading report", err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// DeleteReport removes a report. Deleting an absent report returns 204 too.
func (h *Handler) DeleteReport(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.owner(w, r)
	if !ok {
		return
	}
	if err := h.reports.Delete(r.Context(), ownerID, chi.URLParam(r, "id")); err != nil {
		h.storeError(w, r, "deleting report", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListClients returns the owner's client records.
func (h *Handler) ListClients(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.owner(w, r)
	if !ok {
		return
	}
	list, err := h.clients.ListByOwner(r.Context(), ownerID)
	if err != nil {
		h.storeError(w, r, "listing clients", err)
		return
	}
	writeJSON(w, http.StatusOK, listBody(list))
}

// GetClient returns one client record by ID.
func (h *Handler) GetClient(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.owner(w, r)
	if !ok {
		return
	}
	client, err := h.clients.Get(r.Context(), ownerID, chi.URLParam(r, "id"))
	if err != nil {
		h.storeError(w, r, "loading client", err)
		return
	}
	if client == nil {
		writeError(w, http.StatusNotFound, "client not found")
		return
	}
	writeJSON(w, http.StatusOK, client)
}

// UpdateClient replaces a client record's editable fields.
func (h *Handler) UpdateClient(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.owner(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")

	existing, err := h.clients.Get(r.Context(), ownerID, id)
	if err != nil {
		h.storeError(w, r, "loading client", err)
		return
	}
	if existing == nil {
		writeError(w, http.StatusNotFound, "client not found")
		return
	}

	var client clientstore.Client
	if err := json.NewDecoder(io.LimitReader(r.Body, maxUploadBytes)).Decode(&client); err != nil {
		writeError(w, http.StatusBadRequest, "malformed JSON body")
		return
	}
	client.ID = id
	client.OwnerID = ownerID
	if client.Status == "" {
		client.Status = existing.Status
	}
	if client.BirthDate.IsZero() {
		client.BirthDate = existing.BirthDate
	}

	if err := h.clients.Update(r.Context(), &client); err != nil {
		if errors.Is(err, clientstore.ErrInvalid) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.storeError(w, r, "updating client", err)
		return
	}

	updated, err := h.clients.Get(r.Context(), ownerID, id)
	if err != nil || updated == nil {
		h.storeError(w, r, "reloading client", err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// statusRequest is the JSON body for client status changes.
type statusRequest struct {
	Status string `json:"status"`
}

// UpdateClientStatus changes a client's lifecycle status
// (active/inactive/suspended).
func (h *Handler) UpdateClientStatus(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.owner(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")

	var req statusRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxUploadBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed JSON body")
		return
	}
	if !clientstore.ValidStatus(req.Status) {
		writeError(w, http.StatusBadRequest, "invalid status: must be active, inactive, or suspended")
		return
	}

	existing, err := h.clients.Get(r.Context(), ownerID, id)
	if err != nil {
		h.storeError(w, r, "loading client", err)
		return
	}
	if existing == nil {
		writeError(w, http.StatusNotFound, "client not found")
		return
	}

	if err := h.clients.UpdateStatus(r.Context(), ownerID, id, req.Status); err != nil {
		h.storeError(w, r, "updating client status", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// owner extracts the owner ID header, writing a 400 response when absent.
func (h *Handler) owner(w http.ResponseWriter, r *http.Request) (string, bool) {
	ownerID := strings.TrimSpace(r.Header.Get(ownerHeader))
	if ownerID == "" {
		writeError(w, http.StatusBadRequest, ownerHeader+" header is required")
		return "", false
	}
	return ownerID, true
}

// storeError logs a storage failure and writes a 500 response.
func (h *Handler) storeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	h.logger.Error(op+" failed", "error", err, "path", r.URL.Path)
	writeError(w, http.StatusInternalServerError, op+" failed")
}

// listBody wraps a slice so list endpoints always return a JSON array under
// "items", never a bare null.
func listBody[T any](items []T) map[string]any {
	if items == nil {
		items = []T{}
	}
	return map[string]any{"items": items}
}

type errorBody struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error":"encoding response failed"}`, http.StatusInternalServerError)
	}
}
