package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	flowerr "github.com/coffersTech/nanoflow/pkg/errors"
)

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError responds with the status the error code maps to. Internal
// failures are logged and their details withheld.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	status := flowerr.HTTPStatus(err)
	body := errorBody{Error: err.Error(), Code: string(flowerr.CodeOf(err))}
	if status == http.StatusInternalServerError {
		logger.Error("request failed", "error", err, "code", body.Code)
		body.Error = http.StatusText(status)
	}
	writeJSON(w, status, body)
}
