package api

import (
	"net/http"
	"strconv"

	"github.com/hadv/ethaura-passkeys/internal/apierror"
	"github.com/hadv/ethaura-passkeys/internal/gateway"
)

// envelopeFromQuery extracts the five envelope fields from the request's
// query string, used for the GET getDevices endpoint where the spec
// requires "envelope as query".
func envelopeFromQuery(r *http.Request) (gateway.RawEnvelope, error) {
	q := r.URL.Query()
	ts, err := strconv.ParseInt(q.Get("timestamp"), 10, 64)
	if err != nil {
		return gateway.RawEnvelope{}, apierror.New(apierror.CodeValidation, "missing or malformed timestamp")
	}
	return gateway.RawEnvelope{
		AccountAddress: q.Get("accountAddress"),
		OwnerAddress:   q.Get("ownerAddress"),
		Signature:      q.Get("signature"),
		Message:        q.Get("message"),
		Timestamp:      ts,
	}, nil
}
