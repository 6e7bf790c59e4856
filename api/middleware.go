package api

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	// lastSeenUpdateThreshold is the minimum time between lastSeen updates for a user
	lastSeenUpdateThreshold = 5 * time.Minute
)

// lastSeenMiddleware updates the user's lastSeen timestamp for authenticated requests.
// It uses a 5-minute throttle to reduce database load and performs updates asynchronously.
func (a *API) lastSeenMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := r.Header.Get(userIDHeader)
		if userID != "" {
			shouldUpdate := false
			now := time.Now()

			if lastUpdateTime, ok := a.lastSeen.Load(userID); ok {
				if lastUpdate, ok := lastUpdateTime.(time.Time); ok {
					if now.Sub(lastUpdate) >= lastSeenUpdateThreshold {
						shouldUpdate = true
					}
				}
			} else {
				shouldUpdate = true
			}

			if shouldUpdate {
				// Update cache immediately to prevent concurrent updates
				a.lastSeen.Store(userID, now)

				go func(uid string) {
					ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					if err := a.gw.TouchLastSeen(ctx, uid); err != nil {
						log.Error().Err(err).Str("userId", uid).Msg("failed to update lastSeen timestamp")
						// Remove from cache on failure so it will retry on next request
						a.lastSeen.Delete(uid)
					}
				}(userID)
			}
		}
		next.ServeHTTP(w, r)
	})
}

// mutationRateLimit rejects the write requests of a user above the configured rate.
func (a *API) mutationRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost, http.MethodPut, http.MethodDelete:
			if err := a.rateLimiter.CheckMutationLimit(r.Header.Get(userIDHeader)); err != nil {
				writeError(w, ErrTooManyRequests.WithErr(err))
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}
