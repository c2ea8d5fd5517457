package models

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/BTreeMap/WapiDaktari/internal/util"
)

// APIStatus represents the status of an API response.
type APIStatus string

const (
	// APIStatusOK indicates an API request completed successfully.
	APIStatusOK APIStatus = "ok"
	// APIStatusError indicates an API request failed with an error.
	APIStatusError APIStatus = "error"
)

// APIResponse represents a standard API response with a status and optional data.
type APIResponse struct {
	Status  string      `json:"status"`            // status of the API response
	Message string      `json:"message,omitempty"` // optional message for error responses or additional info
	Result  interface{} `json:"result,omitempty"`  // optional result data for successful responses
}

// Success creates a successful API response with optional result data.
func Success(result interface{}) APIResponse {
	return APIResponse{Status: string(APIStatusOK), Result: result}
}

// SuccessWithMessage creates a successful API response with a message and optional result data.
func SuccessWithMessage(message string, result interface{}) APIResponse {
	return APIResponse{Status: string(APIStatusOK), Message: message, Result: result}
}

// Error creates an error API response with a message.
func Error(message string) APIResponse {
	return APIResponse{Status: string(APIStatusError), Message: message}
}

// PredictRequest is the payload of the model endpoints.
type PredictRequest struct {
	Features FeatureValues `json:"features"`
}

// FeatureValues holds raw feature values keyed by column name. It accepts JSON
// strings, numbers and booleans; booleans are rendered as True/False to match
// the dataset's spelling.
type FeatureValues map[string]string

func (f *FeatureValues) UnmarshalJSON(data []byte) error {
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(FeatureValues, len(raw))
	for name, v := range raw {
		switch v := v.(type) {
		case string:
			out[name] = v
		case float64:
			out[name] = strconv.FormatFloat(v, 'f', -1, 64)
		case bool:
			out[name] = util.FormatBool(v)
		default:
			return fmt.Errorf("feature %q: unsupported value %v", name, v)
		}
	}
	*f = out
	return nil
}
