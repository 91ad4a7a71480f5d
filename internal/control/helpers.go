package control

import (
	"net/http"
	"strconv"
)

func pathUint64(r *http.Request, key string) (uint64, error) {
	return parseUint64(r.PathValue(key))
}

func parseUint64(s string) (uint64, error) {
	return strconv.ParseUint(s, 10, 64)
}
