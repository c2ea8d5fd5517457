// Package api provides HTTP handlers for WapiDaktari endpoints.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/BTreeMap/WapiDaktari/internal/models"
	"github.com/BTreeMap/WapiDaktari/internal/predict"
	"github.com/BTreeMap/WapiDaktari/internal/ussd"
	"github.com/BTreeMap/WapiDaktari/internal/util"
)

// ussdHandler is the gateway callback. It always answers 200 with a framed
// screen; failures are rendered as END screens by the menu machine.
func (s *Server) ussdHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		slog.Warn("Server.ussdHandler: method not allowed", "method", r.Method)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		slog.Warn("Server.ussdHandler: failed to parse form", "error", err)
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}

	sessionID := r.FormValue("sessionId")
	if sessionID == "" {
		sessionID = util.GenerateSessionID()
		slog.Debug("Server.ussdHandler: gateway sent no session id, generated one", "sessionID", sessionID)
	}
	phone := r.FormValue("phoneNumber")
	trail := ussd.ParseTrail(r.FormValue("text"))

	ctx := r.Context()
	if s.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.requestTimeout)
		defer cancel()
	}
	screen := s.machine.Render(ctx, trail)

	turn := models.Turn{
		SessionID:   sessionID,
		PhoneNumber: phone,
		ServiceCode: r.FormValue("serviceCode"),
		Step:        trail.Step(),
		Terminal:    screen.End,
		Time:        time.Now(),
	}
	if err := s.st.RecordTurn(turn); err != nil {
		slog.Error("Server.ussdHandler: failed to record turn", "error", err, "sessionID", sessionID)
	}

	if screen.Result != nil && s.sender != nil && phone != "" {
		s.sendFollowUp(phone, screen.FollowUp)
	}

	slog.Debug("Server.ussdHandler: screen served", "sessionID", sessionID, "step", trail.Step(), "end", screen.End)
	writeScreen(w, screen)
}

// sendFollowUp sends the answer by SMS in the background. Failures are only logged.
func (s *Server) sendFollowUp(to, body string) {
	s.followUps.Add(1)
	go func() {
		defer s.followUps.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.smsTimeout)
		defer cancel()
		if err := s.sender.SendMessage(ctx, to, body); err != nil {
			slog.Error("Server.sendFollowUp: SMS follow-up failed", "error", err, "to", to)
			return
		}
		slog.Info("Server.sendFollowUp: SMS follow-up sent", "to", to)
	}()
}

func (s *Server) bestTimeHandler(w http.ResponseWriter, r *http.Request) {
	slog.Debug("Server.bestTimeHandler: processing best time request", "method", r.Method, "query", r.URL.RawQuery)
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		slog.Warn("Server.bestTimeHandler: method not allowed", "method", r.Method)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	q := r.URL.Query()
	hospital := strings.TrimSpace(q.Get("hospital"))
	department := strings.TrimSpace(q.Get("department"))
	rawDate := strings.TrimSpace(q.Get("date"))
	if hospital == "" || department == "" || rawDate == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Missing required parameters: hospital, department, date"))
		return
	}
	date, err := time.ParseInLocation(models.DateLayout, rawDate, s.loc)
	if err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid date, expected YYYY-MM-DD"))
		return
	}

	ctx := r.Context()
	if status, msg := s.checkCatalog(ctx, hospital, department); status != http.StatusOK {
		writeJSONResponse(w, status, models.Error(msg))
		return
	}

	result, err := s.predictor.Select(ctx, hospital, department, date)
	if err != nil {
		if errors.Is(err, models.ErrNoPrediction) {
			slog.Info("Server.bestTimeHandler: no prediction available", "hospital", hospital, "department", department, "date", rawDate)
			writeJSONResponse(w, http.StatusNotFound, models.Error("No prediction available for that day"))
			return
		}
		slog.Error("Server.bestTimeHandler: selection failed", "error", err, "hospital", hospital, "department", department)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Prediction failed"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(result))
}

// checkCatalog reports whether hospital and department are offered.
func (s *Server) checkCatalog(ctx context.Context, hospital, department string) (int, string) {
	hospitals, err := s.catalog.Hospitals(ctx)
	if err != nil {
		slog.Error("Server.checkCatalog: failed to list hospitals", "error", err)
		return http.StatusInternalServerError, "Failed to list hospitals"
	}
	if !slices.Contains(hospitals, hospital) {
		return http.StatusNotFound, models.ErrUnknownHospital.Error() + ": " + hospital
	}
	departments, err := s.catalog.Departments(ctx)
	if err != nil {
		slog.Error("Server.checkCatalog: failed to list departments", "error", err)
		return http.StatusInternalServerError, "Failed to list departments"
	}
	if !slices.Contains(departments, department) {
		return http.StatusNotFound, models.ErrUnknownDepartment.Error() + ": " + department
	}
	return http.StatusOK, ""
}

// decodeFeatures reads a predict request and transforms it into a model input vector.
func (s *Server) decodeFeatures(w http.ResponseWriter, r *http.Request, handler string) ([]float64, bool) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		slog.Warn(handler+": method not allowed", "method", r.Method)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return nil, false
	}
	var req models.PredictRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn(handler+": failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return nil, false
	}
	if len(req.Features) == 0 {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Missing required field: features"))
		return nil, false
	}
	x, err := s.artifacts.Preprocessor.Transform(models.FeatureRow{Values: req.Features})
	if err != nil {
		var missing *predict.MissingFeatureError
		var invalid *predict.InvalidFeatureError
		if errors.As(err, &missing) || errors.As(err, &invalid) {
			writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
			return nil, false
		}
		slog.Error(handler+": preprocessing failed", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Preprocessing failed"))
		return nil, false
	}
	return x, true
}

func (s *Server) predictRegressionHandler(w http.ResponseWriter, r *http.Request) {
	x, ok := s.decodeFeatures(w, r, "Server.predictRegressionHandler")
	if !ok {
		return
	}
	out, err := s.artifacts.Ensemble.RegressAll(x)
	if err != nil {
		slog.Error("Server.predictRegressionHandler: regression failed", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Prediction failed"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(out))
}

func (s *Server) predictClassificationHandler(w http.ResponseWriter, r *http.Request) {
	x, ok := s.decodeFeatures(w, r, "Server.predictClassificationHandler")
	if !ok {
		return
	}
	out, err := s.artifacts.Ensemble.ClassifyAll(x)
	if err != nil {
		slog.Error("Server.predictClassificationHandler: classification failed", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Prediction failed"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(out))
}

func (s *Server) statsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		slog.Warn("Server.statsHandler: method not allowed", "method", r.Method)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	turns, err := s.st.GetTurns()
	if err != nil {
		slog.Error("Server.statsHandler: failed to fetch turns", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to fetch turns"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(models.SummarizeTurns(turns)))
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("ok", nil))
}
