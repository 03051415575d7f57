package main

import (
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
)

// authHeader carries the admin token on API requests.
const authHeader = "portico-auth"

// requireToken guards the admin API with a single static token. When no
// token is configured the API stays open, which is the expected mode on a
// developer machine; the token exists for shared or remote setups.
func requireToken(token string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if token == "" {
			next.ServeHTTP(w, r)
			return
		}

		got := r.Header.Get(authHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			respondWithError(w, http.StatusUnauthorized, http.StatusText(http.StatusUnauthorized))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if payload != nil {
		err := json.NewEncoder(w).Encode(payload)
		if err != nil {
			fmt.Printf("ERROR: Failed to encode JSON response: %v\n", err)
		}
	}
}
