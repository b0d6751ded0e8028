package syncapi

import (
	"encoding/json"
	"net/http"

	"github.com/sirupsen/logrus"

	"meshnode/internal/merr"
	"meshnode/internal/wire"
)

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(wire.Envelope{Status: wire.StatusSuccess, Data: data})
}

func respondError(w http.ResponseWriter, logger *logrus.Logger, err error) {
	kind, ok := merr.KindOf(err)
	status := http.StatusInternalServerError
	if ok {
		status = merr.HTTPStatus(kind)
	}
	if status >= 500 {
		logger.WithError(err).Error("sync surface request failed")
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(wire.Envelope{Status: wire.StatusError, Message: err.Error()})
}
