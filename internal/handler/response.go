package handler

import (
	"net/http"
	"time"

	apperrors "github.com/trainerbook/scheduling-server-go/internal/errors"
	"github.com/trainerbook/scheduling-server-go/internal/httputil"
)

func writeJSON(w http.ResponseWriter, status int, data any) {
	httputil.WriteJSON(w, status, data)
}

func writeError(w http.ResponseWriter, err error) {
	httputil.WriteError(w, err)
}

func parseTimestamp(field, value string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, apperrors.InvalidInput(field, "must be an RFC 3339 timestamp")
	}
	return t, nil
}

func parseDate(field, value string) (time.Time, error) {
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		return time.Time{}, apperrors.InvalidInput(field, "must be a YYYY-MM-DD date")
	}
	return t, nil
}
