package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"stocksync-api/internal/queue"
	"stocksync-api/internal/reconcile"
	"stocksync-api/internal/syncerr"
	"stocksync-api/pkg/apierror"
	"stocksync-api/pkg/response"
)

// writeError maps domain errors onto API errors.
func writeError(w http.ResponseWriter, err error) {
	response.Error(w, toAPIError(err))
}

func toAPIError(err error) error {
	var apiErr *apierror.Error
	if errors.As(err, &apiErr) {
		return apiErr
	}

	switch {
	case errors.Is(err, reconcile.ErrUpdateNotFound), errors.Is(err, queue.ErrTaskNotFound):
		return apierror.NotFound(err.Error())
	case errors.Is(err, reconcile.ErrNotPending):
		return apierror.Conflict(err.Error())
	}

	var se *syncerr.Error
	if !errors.As(err, &se) {
		return err
	}
	switch se.Kind {
	case syncerr.KindValidation:
		return apierror.ValidationError(se.Message)
	case syncerr.KindUnresolvedItem:
		return apierror.UnprocessableEntity(se.Error())
	case syncerr.KindAlreadySynced:
		return apierror.Conflict(se.Error())
	case syncerr.KindAuth, syncerr.KindConnection, syncerr.KindRemoteServer, syncerr.KindMalformedResponse:
		return apierror.BadGateway(se.Error())
	}
	return err
}

// decodeJSON reads a JSON request body into v.
func decodeJSON(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return apierror.BadRequest("invalid JSON: " + err.Error())
	}
	return nil
}
