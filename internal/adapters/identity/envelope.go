package identity

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	jmespath "github.com/jmespath-community/go-jmespath"

	domainauth "github.com/moneybook/websession/internal/domain/auth"
)

// Default envelope locations for the provider's {"data": ...} responses.
const (
	DefaultAuthenticatedPath = "data.authenticated"
	DefaultIdentityPath      = "data"
)

var errEnvelopeShape = errors.New("unexpected envelope shape")

// Envelope extracts fields from provider responses with JMESPath expressions
// compiled once at construction.
type Envelope struct {
	authenticatedPath string
	identityPath      string
	authenticated     jmespath.JMESPath
	identity          jmespath.JMESPath
}

// NewEnvelope compiles both expressions, substituting defaults for empty ones.
func NewEnvelope(authenticatedPath, identityPath string) (Envelope, error) {
	e := Envelope{
		authenticatedPath: strings.TrimSpace(authenticatedPath),
		identityPath:      strings.TrimSpace(identityPath),
	}
	if e.authenticatedPath == "" {
		e.authenticatedPath = DefaultAuthenticatedPath
	}
	if e.identityPath == "" {
		e.identityPath = DefaultIdentityPath
	}
	var err error
	if e.authenticated, err = jmespath.Compile(e.authenticatedPath); err != nil {
		return Envelope{}, fmt.Errorf("compile authenticated path %q: %w", e.authenticatedPath, err)
	}
	if e.identity, err = jmespath.Compile(e.identityPath); err != nil {
		return Envelope{}, fmt.Errorf("compile identity path %q: %w", e.identityPath, err)
	}
	return e, nil
}

// Authenticated reads the validate verdict. Anything other than a JSON boolean is an error.
func (e Envelope) Authenticated(body []byte) (bool, error) {
	v, err := search(e.authenticated, e.authenticatedPath, body)
	if err != nil {
		return false, err
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("%w: %s is %T, want bool", errEnvelopeShape, e.authenticatedPath, v)
	}
	return b, nil
}

// Identity reads the identity record. Numeric user ids are accepted and rendered as strings.
func (e Envelope) Identity(body []byte) (domainauth.Identity, error) {
	v, err := search(e.identity, e.identityPath, body)
	if err != nil {
		return domainauth.Identity{}, err
	}
	m, ok := v.(map[string]any)
	if !ok {
		return domainauth.Identity{}, fmt.Errorf("%w: %s is %T, want object", errEnvelopeShape, e.identityPath, v)
	}
	return domainauth.Identity{
		UserID:         stringField(m, "userId", "id"),
		FirstName:      stringField(m, "firstName"),
		LastName:       stringField(m, "lastName"),
		Email:          stringField(m, "email"),
		ProfilePicture: stringField(m, "profilePicture"),
	}, nil
}

func search(compiled jmespath.JMESPath, expr string, body []byte) (any, error) {
	if compiled == nil {
		return nil, fmt.Errorf("%w: expression %q not compiled", errEnvelopeShape, expr)
	}
	var data any
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	v, err := compiled.Search(data)
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", expr, err)
	}
	return v, nil
}

// stringField returns the first present key rendered as a string.
func stringField(m map[string]any, keys ...string) string {
	for _, k := range keys {
		switch v := m[k].(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	return ""
}
