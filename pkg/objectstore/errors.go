package objectstore

import (
	"errors"
	"net"
	"net/http"

	"github.com/minio/minio-go/v7"
)

// Error kinds the core must distinguish (spec §7): not-found, transport,
// server. Callers use errors.Is against these sentinels.
var (
	ErrNotFound = errors.New("objectstore: not found")
	ErrTransport = errors.New("objectstore: transport error")
	ErrServer    = errors.New("objectstore: server error")
)

// classify wraps a raw minio/network error with one of the sentinel
// kinds above so callers never need to string-match error messages.
func classify(err error) error {
	if err == nil {
		return nil
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return errWrap(ErrTransport, err)
	}

	resp := minio.ToErrorResponse(err)
	switch resp.Code {
	case "NoSuchKey", "NoSuchBucket", "NotFound":
		return errWrap(ErrNotFound, err)
	}
	switch resp.StatusCode {
	case http.StatusNotFound:
		return errWrap(ErrNotFound, err)
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return errWrap(ErrTransport, err)
	case http.StatusInternalServerError:
		return errWrap(ErrServer, err)
	}

	// No structured response (e.g. dial failure before any HTTP
	// response was received) is treated as transport.
	if resp.StatusCode == 0 {
		return errWrap(ErrTransport, err)
	}
	return errWrap(ErrServer, err)
}

type wrappedError struct {
	kind  error
	cause error
}

func errWrap(kind, cause error) error {
	return &wrappedError{kind: kind, cause: cause}
}

func (w *wrappedError) Error() string {
	return w.kind.Error() + ": " + w.cause.Error()
}

func (w *wrappedError) Unwrap() error {
	return w.kind
}

// Cause returns the underlying error that classify wrapped.
func Cause(err error) error {
	var w *wrappedError
	if errors.As(err, &w) {
		return w.cause
	}
	return err
}
