package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/BTreeMap/WapiDaktari/internal/models"
	"github.com/BTreeMap/WapiDaktari/internal/ussd"
)

// fallbackBody is sent when a response cannot be encoded.
var fallbackBody = mustMarshal(models.Error("Internal server error"))

func mustMarshal(v interface{}) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		panic("api: cannot marshal fallback response: " + err.Error())
	}
	return data
}

// writeJSONResponse encodes response before touching headers, so an encoding
// failure still yields a well-formed 500.
func writeJSONResponse(w http.ResponseWriter, statusCode int, response interface{}) {
	body, err := json.Marshal(response)
	if err != nil {
		slog.Error("Server.writeJSONResponse: failed to marshal JSON response", "error", err)
		body = fallbackBody
		statusCode = http.StatusInternalServerError
	}
	writeBody(w, statusCode, "application/json", body)
}

// writeScreen answers a gateway callback. Gateways expect 200 for every
// framed screen, END screens included.
func writeScreen(w http.ResponseWriter, screen ussd.Screen) {
	writeBody(w, http.StatusOK, "text/plain; charset=utf-8", []byte(screen.String()))
}

func writeBody(w http.ResponseWriter, statusCode int, contentType string, body []byte) {
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(statusCode)
	if _, err := w.Write(body); err != nil {
		slog.Error("Server.writeBody: failed to write response", "error", err, "content_type", contentType)
	}
}
