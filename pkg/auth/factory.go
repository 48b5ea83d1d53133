package auth

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/dukex/conduit/pkg/models"
	"github.com/jonboulle/clockwork"
	"golang.org/x/oauth2"
)

// Auth types accepted in a connection's config.auth.type.
const (
	TypeNone     = "none"
	TypeBasic    = "basic"
	TypeAPIKey   = "api_key"
	TypeBearer   = "bearer"
	TypeOAuth2   = "oauth2"
	TypeHMAC     = "hmac"
	TypeAWSSigV4 = "aws_sigv4"
	TypeJWT      = "jwt"
)

// Dependencies are the collaborators handlers may need at runtime.
type Dependencies struct {
	Tokens     TokenStorage
	Clock      clockwork.Clock
	HTTPClient *http.Client
}

// FromConnection builds the handler described by conn.Config["auth"] using
// the connection's decrypted secrets.
func FromConnection(conn *models.ConnectionDefinition, secrets map[string]string, deps Dependencies) (Handler, error) {
	settings, _ := conn.Config["auth"].(map[string]any)

	authType := stringSetting(settings, "type")
	if authType == "" {
		authType = TypeNone
	}

	secret := func(key string) string {
		if v := secrets[key]; v != "" {
			return v
		}

		return stringSetting(settings, key)
	}

	switch authType {
	case TypeNone:
		return NoAuthHandler{}, nil
	case TypeBasic:
		return &BasicAuthHandler{Username: secret("username"), Password: secret("password")}, nil
	case TypeAPIKey:
		return &APIKeyHandler{
			Key:      secrets["api_key"],
			Name:     stringSetting(settings, "name"),
			Location: APIKeyLocation(stringSetting(settings, "location")),
			Prefix:   stringSetting(settings, "prefix"),
		}, nil
	case TypeBearer:
		return &BearerTokenHandler{Token: secrets["token"]}, nil
	case TypeOAuth2:
		if deps.Tokens == nil {
			return nil, fmt.Errorf("%w: oauth2 requires token storage", ErrUnsupportedAuth)
		}

		handler := &OAuth2Handler{
			ConnectionID: conn.ID,
			Storage:      deps.Tokens,
			Clock:        deps.Clock,
		}

		if tokenURL := stringSetting(settings, "token_url"); tokenURL != "" {
			handler.Refresher = &ConfigRefresher{
				Config: &oauth2.Config{
					ClientID:     secret("client_id"),
					ClientSecret: secrets["client_secret"],
					Endpoint: oauth2.Endpoint{
						TokenURL:  tokenURL,
						AuthURL:   stringSetting(settings, "auth_url"),
						AuthStyle: authStyle(stringSetting(settings, "auth_style")),
					},
					Scopes:       splitScopes(stringSetting(settings, "scopes")),
				},
				HTTPClient: deps.HTTPClient,
			}
		}

		return handler, nil
	case TypeHMAC:
		return &CustomAuthHandler{Clock: deps.Clock, Method: &HMACSigner{
			KeyID:           stringSetting(settings, "key_id"),
			Secret:          []byte(secrets["signing_secret"]),
			SignatureHeader: stringSetting(settings, "signature_header"),
			TimestampHeader: stringSetting(settings, "timestamp_header"),
		}}, nil
	case TypeAWSSigV4:
		return &CustomAuthHandler{Clock: deps.Clock, Method: &AWSSigV4Signer{
			Credentials: aws.Credentials{
				AccessKeyID:     secrets["access_key_id"],
				SecretAccessKey: secrets["secret_access_key"],
				SessionToken:    secrets["session_token"],
			},
			Region:  stringSetting(settings, "region"),
			Service: stringSetting(settings, "service"),
		}}, nil
	case TypeJWT:
		signer := &JWTSigner{
			Secret:   []byte(secrets["signing_secret"]),
			Issuer:   stringSetting(settings, "issuer"),
			Audience: stringSetting(settings, "audience"),
			Header:   stringSetting(settings, "header"),
			Prefix:   stringSetting(settings, "prefix"),
		}

		if ttl, ok := settings["ttl_seconds"].(float64); ok && ttl > 0 {
			signer.TTL = time.Duration(ttl) * time.Second
		}

		return &CustomAuthHandler{Clock: deps.Clock, Method: signer}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedAuth, authType)
	}
}

func stringSetting(settings map[string]any, key string) string {
	v, _ := settings[key].(string)

	return v
}

// authStyle avoids auto detection, which may hit the token endpoint twice.
func authStyle(style string) oauth2.AuthStyle {
	if style == "params" {
		return oauth2.AuthStyleInParams
	}

	return oauth2.AuthStyleInHeader
}

func splitScopes(scopes string) []string {
	if scopes == "" {
		return nil
	}

	return strings.FieldsFunc(scopes, func(r rune) bool { return r == ' ' || r == ',' })
}
