package httpds

import (
	"encoding/base64"
	"fmt"
	"net/http"
)

// Auth types an API data source may configure.
const (
	AuthNone   = ""
	AuthAPIKey = "apiKey"
	AuthBearer = "bearer"
	AuthJWT    = "jwt"
	AuthBasic  = "basic"
)

// ValidateAuth checks that authType is known and secrets carry what it needs.
func ValidateAuth(authType string, secrets map[string]string) error {
	switch authType {
	case AuthNone:
		return nil
	case AuthAPIKey:
		if secrets["apiKey"] == "" {
			return fmt.Errorf("API key is required")
		}
	case AuthBearer, AuthJWT:
		if secrets["token"] == "" {
			return fmt.Errorf("Bearer token is required")
		}
	case AuthBasic:
		if secrets["username"] == "" || secrets["password"] == "" {
			return fmt.Errorf("Username and password are required")
		}
	default:
		return fmt.Errorf("Invalid authType: %s", authType)
	}
	return nil
}

// AuthHeader builds the Authorization header for authType. The apiKey type
// sends the key as the raw header value.
func AuthHeader(authType string, secrets map[string]string) (http.Header, error) {
	if err := ValidateAuth(authType, secrets); err != nil {
		return nil, err
	}
	h := http.Header{}
	switch authType {
	case AuthAPIKey:
		h.Set("Authorization", secrets["apiKey"])
	case AuthBearer, AuthJWT:
		h.Set("Authorization", "Bearer "+secrets["token"])
	case AuthBasic:
		cred := base64.StdEncoding.EncodeToString([]byte(secrets["username"] + ":" + secrets["password"]))
		h.Set("Authorization", "Basic "+cred)
	}
	return h, nil
}
