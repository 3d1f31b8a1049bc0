package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/hyperengineering/fieldsync/internal/remote"
	"github.com/hyperengineering/fieldsync/internal/types"
	"github.com/hyperengineering/fieldsync/internal/validation"
)

const (
	// MaxBodyBytes bounds request bodies.
	MaxBodyBytes = 1 << 20

	// MaxSelectLimit caps the rows returned by one select.
	MaxSelectLimit = 1000

	filterPrefix = "eq."
)

type upsertResponse struct {
	ID string `json:"id"`
}

type selectResponse struct {
	Rows []types.Row `json:"rows"`
}

// decodeRow reads a JSON object body, answering 400/413 itself on failure.
func decodeRow(w http.ResponseWriter, r *http.Request) (types.Row, bool) {
	var row types.Row
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxBodyBytes)).Decode(&row); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			WriteProblem(w, r, http.StatusRequestEntityTooLarge, fmt.Sprintf("Body exceeds %d bytes", MaxBodyBytes))
			return nil, false
		}
		WriteProblem(w, r, http.StatusBadRequest, fmt.Sprintf("Invalid JSON: %s", err))
		return nil, false
	}
	if row == nil {
		WriteProblem(w, r, http.StatusBadRequest, "Body must be a JSON object")
		return nil, false
	}
	return row, true
}

// UpsertRow handles POST /api/v1/tables/{table}/rows
func (h *Handler) UpsertRow(w http.ResponseWriter, r *http.Request) {
	table := MustTableFromContext(r.Context())

	row, ok := decodeRow(w, r)
	if !ok {
		return
	}
	if errs := validation.ValidateRow(table, row); len(errs) > 0 {
		WriteProblemWithErrors(w, r, "Row contains invalid fields", errs)
		return
	}

	id, err := h.rows.Upsert(r.Context(), table.Name, row)
	if err != nil {
		slog.Error("upsert failed",
			"component", "api",
			"action", "upsert_row",
			"table", table.Name,
			"error", err,
		)
		MapRemoteError(w, r, err)
		return
	}

	slog.Debug("row upserted",
		"component", "api",
		"action", "upsert_row",
		"table", table.Name,
		"id", id,
	)
	writeJSON(w, http.StatusOK, upsertResponse{ID: id})
}

// UpdateRows handles PATCH /api/v1/tables/{table}/rows?column=&value=
func (h *Handler) UpdateRows(w http.ResponseWriter, r *http.Request) {
	table := MustTableFromContext(r.Context())

	column := r.URL.Query().Get("column")
	value := r.URL.Query().Get("value")
	if errs := validation.ValidateFilter(table, column, value); len(errs) > 0 {
		WriteProblemWithErrors(w, r, "Invalid filter", errs)
		return
	}

	patch, ok := decodeRow(w, r)
	if !ok {
		return
	}
	if errs := validation.ValidatePatch(table, patch); len(errs) > 0 {
		WriteProblemWithErrors(w, r, "Patch contains invalid fields", errs)
		return
	}

	filter := remote.Filter{Column: column, Value: value}
	if err := h.rows.Update(r.Context(), table.Name, patch, filter); err != nil {
		slog.Error("update failed",
			"component", "api",
			"action", "update_rows",
			"table", table.Name,
			"column", column,
			"error", err,
		)
		MapRemoteError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SelectRows handles GET /api/v1/tables/{table}/rows
func (h *Handler) SelectRows(w http.ResponseWriter, r *http.Request) {
	table := MustTableFromContext(r.Context())
	params := r.URL.Query()

	query := remote.Query{Limit: MaxSelectLimit}
	if s := params.Get("updated_after"); s != "" {
		t, err := types.ParseTime(s)
		if err != nil {
			WriteProblem(w, r, http.StatusBadRequest, "Invalid updated_after: must be an RFC 3339 timestamp")
			return
		}
		query.UpdatedAfter = &t
	}
	if s := params.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			WriteProblem(w, r, http.StatusBadRequest, "Invalid limit: must be a positive integer")
			return
		}
		query.Limit = min(n, MaxSelectLimit)
	}
	for key, values := range params {
		column, ok := strings.CutPrefix(key, filterPrefix)
		if !ok {
			continue
		}
		if errs := validation.ValidateFilter(table, column, values[0]); len(errs) > 0 {
			WriteProblemWithErrors(w, r, "Invalid filter", errs)
			return
		}
		query.Filters = append(query.Filters, remote.Filter{Column: column, Value: values[0]})
	}

	rows, err := h.rows.Select(r.Context(), table.Name, query)
	if err != nil {
		slog.Error("select failed",
			"component", "api",
			"action", "select_rows",
			"table", table.Name,
			"error", err,
		)
		MapRemoteError(w, r, err)
		return
	}
	if rows == nil {
		rows = []types.Row{}
	}
	writeJSON(w, http.StatusOK, selectResponse{Rows: rows})
}
