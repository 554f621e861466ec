package env

import (
	"os"
	"strings"
)

// Get reads key from the process environment. Unset or blank values fall
// back, so STOREFRONT_INSTANCE_ID=" " behaves like an unset variable.
func Get(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		if val = strings.TrimSpace(val); val != "" {
			return val
		}
	}
	return fallback
}
