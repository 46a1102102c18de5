package api

import (
	"context"
	"net/http"
	"regexp"
	"strings"
)

// ConsumerHeader carries the consumer identity asserted by the platform's
// auth layer in front of this service.
const ConsumerHeader = "X-Consumer-ID"

var consumerIDRE = regexp.MustCompile(`^[A-Za-z0-9._:@-]{1,128}$`)

type consumerKey struct{}

// requireConsumer rejects requests without a well-formed consumer id.
func requireConsumer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(ConsumerHeader))
		if !consumerIDRE.MatchString(id) {
			writeError(w, http.StatusUnauthorized, "unauthorized", "missing or malformed consumer id")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), consumerKey{}, id)))
	})
}

func consumerFrom(ctx context.Context) string {
	id, _ := ctx.Value(consumerKey{}).(string)
	return id
}
