package admin

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	apperrors "github.com/louisbranch/docwatch/internal/platform/errors"
)

const maxBodyBytes = 1 << 20

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError maps coded errors to their status. Uncoded errors are logged and
// reported as internal without detail.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := apperrors.CodeOf(err)
	message := "internal error"
	var coded *apperrors.Error
	if errors.As(err, &coded) && code != apperrors.CodeUnknown {
		message = coded.Message
	}
	entry := h.logger.WithError(err).WithFields(map[string]any{
		"request_id": middleware.GetReqID(r.Context()),
		"code":       string(code),
	})
	if coded != nil {
		for key, value := range coded.Metadata {
			entry = entry.WithField(key, value)
		}
	}
	status := code.HTTPStatus()
	if status >= http.StatusInternalServerError {
		entry.Error("admin request failed")
	} else {
		entry.Info("admin request rejected")
	}
	writeJSON(w, status, errorResponse{Error: errorBody{Code: string(code), Message: message}})
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, target any) bool {
	return h.decodeBody(w, r, target, false)
}

// decodeOptional accepts an empty body.
func (h *Handler) decodeOptional(w http.ResponseWriter, r *http.Request, target any) bool {
	return h.decodeBody(w, r, target, true)
}

func (h *Handler) decodeBody(w http.ResponseWriter, r *http.Request, target any, optional bool) bool {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(target); err != nil {
		if optional && errors.Is(err, io.EOF) {
			return true
		}
		h.writeError(w, r, apperrors.Wrap(apperrors.CodeInvalidArgument, "invalid JSON body", err))
		return false
	}
	return true
}
