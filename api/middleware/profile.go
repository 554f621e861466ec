package middleware

import (
	"net/http"
	"regexp"
	"strings"

	"github.com/angelmondragon/storefront-backend/api/responses"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

// ProfileHeader carries the shopper profile. Each profile owns one cart and
// one checkout staging list.
const ProfileHeader = "X-Profile-Id"

var profileIDRe = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// Profile requires a well-formed profile header and binds it to the request.
func Profile(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			profileID := strings.TrimSpace(r.Header.Get(ProfileHeader))
			if profileID == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, ProfileHeader+" header required"))
				return
			}
			if !profileIDRe.MatchString(profileID) {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid profile id"))
				return
			}

			ctx := WithProfileID(r.Context(), profileID)
			if logg != nil {
				ctx = logg.WithProfileID(ctx, profileID)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
