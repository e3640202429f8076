package logout

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"time"

	"github.com/beevik/etree"
	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
	"github.com/google/uuid"
	dsig "github.com/russellhaering/goxmldsig"
)

const (
	// SAMLFormField is the form field carrying a back-channel LogoutRequest
	SAMLFormField = "logoutRequest"
	// OIDCFormField is the form field carrying an OIDC logout token
	OIDCFormField = "logout_token"

	// BackChannelLogoutEvent is the events claim member of a logout token
	BackChannelLogoutEvent = "http://schemas.openid.net/event/backchannel-logout"
	// LogoutTokenType is the JOSE typ header of a logout token
	LogoutTokenType = "logout+jwt"

	samlProtocolNS   = "urn:oasis:names:tc:SAML:2.0:protocol"
	samlAssertionNS  = "urn:oasis:names:tc:SAML:2.0:assertion"
	samlNameIDUnused = "@NOT_USED@"
)

// Message is a built logout notification ready to send
type Message struct {
	ID      string
	URL     string
	Form    url.Values
	Payload string
}

// MessageBuilder turns one logout attempt into a protocol message
type MessageBuilder interface {
	Build(ctx context.Context, rc *RequestContext) (*Message, error)
}

// SAMLMessageBuilder produces SAML2 LogoutRequest documents, the format CAS
// clients and SAML service providers accept on the back channel. The
// SessionIndex is the service ticket the relying party validated.
type SAMLMessageBuilder struct {
	issuer string
	signer *dsig.SigningContext
	now    func() time.Time
	newID  func() string
}

// NewSAMLMessageBuilder creates a builder. signer may be nil for unsigned
// requests.
func NewSAMLMessageBuilder(issuer string, signer *dsig.SigningContext) *SAMLMessageBuilder {
	return &SAMLMessageBuilder{
		issuer: issuer,
		signer: signer,
		now:    time.Now,
		newID:  func() string { return "LR-" + uuid.NewString() },
	}
}

// Build renders the LogoutRequest and wraps it in a form post
func (b *SAMLMessageBuilder) Build(ctx context.Context, rc *RequestContext) (*Message, error) {
	id := b.newID()

	doc := etree.NewDocument()
	root := doc.CreateElement("samlp:LogoutRequest")
	root.CreateAttr("xmlns:samlp", samlProtocolNS)
	root.CreateAttr("xmlns:saml", samlAssertionNS)
	root.CreateAttr("ID", id)
	root.CreateAttr("Version", "2.0")
	root.CreateAttr("IssueInstant", b.now().UTC().Format(time.RFC3339))
	root.CreateAttr("Destination", rc.LogoutURL.URL)

	if b.issuer != "" {
		root.CreateElement("saml:Issuer").SetText(b.issuer)
	}
	root.CreateElement("saml:NameID").SetText(samlNameIDUnused)
	root.CreateElement("samlp:SessionIndex").SetText(rc.Service.TicketID)

	if b.signer != nil {
		signed, err := b.signer.SignEnveloped(root)
		if err != nil {
			return nil, fmt.Errorf("failed to sign logout request: %w", err)
		}
		doc.SetRoot(signed)
	}

	payload, err := doc.WriteToString()
	if err != nil {
		return nil, fmt.Errorf("failed to serialize logout request: %w", err)
	}

	return &Message{
		ID:      id,
		URL:     rc.LogoutURL.URL,
		Form:    url.Values{SAMLFormField: {payload}},
		Payload: payload,
	}, nil
}

type logoutTokenClaims struct {
	jwt.Claims
	SessionID string              `json:"sid,omitempty"`
	Events    map[string]struct{} `json:"events"`
}

// OIDCLogoutTokenBuilder produces OpenID Connect back-channel logout tokens
// addressed to the relying party's client ID.
type OIDCLogoutTokenBuilder struct {
	issuer string
	signer jose.Signer
	now    func() time.Time
	newID  func() string
}

// NewOIDCLogoutTokenBuilder signs tokens with key, which is any key go-jose
// accepts for alg (a *rsa.PrivateKey for RS256, a jose.JSONWebKey to carry a kid).
func NewOIDCLogoutTokenBuilder(issuer string, alg jose.SignatureAlgorithm, key interface{}) (*OIDCLogoutTokenBuilder, error) {
	signer, err := jose.NewSigner(
		jose.SigningKey{Algorithm: alg, Key: key},
		(&jose.SignerOptions{}).WithType(LogoutTokenType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create logout token signer: %w", err)
	}
	return &OIDCLogoutTokenBuilder{
		issuer: issuer,
		signer: signer,
		now:    time.Now,
		newID:  uuid.NewString,
	}, nil
}

// SessionIDClaim derives the sid claim from an SSO session ID. The raw
// ticket-granting ticket never leaves the server.
func SessionIDClaim(sessionID string) string {
	sum := sha256.Sum256([]byte(sessionID))
	return hex.EncodeToString(sum[:16])
}

// Build signs a logout token and wraps it in a form post
func (b *OIDCLogoutTokenBuilder) Build(ctx context.Context, rc *RequestContext) (*Message, error) {
	if rc.RegisteredService == nil || rc.RegisteredService.ClientID == "" {
		return nil, fmt.Errorf("logout token requires a client id")
	}

	jti := b.newID()
	claims := logoutTokenClaims{
		Claims: jwt.Claims{
			Issuer:   b.issuer,
			Audience: jwt.Audience{rc.RegisteredService.ClientID},
			IssuedAt: jwt.NewNumericDate(b.now()),
			ID:       jti,
		},
		SessionID: SessionIDClaim(rc.SessionID),
		Events:    map[string]struct{}{BackChannelLogoutEvent: {}},
	}

	token, err := jwt.Signed(b.signer).Claims(claims).Serialize()
	if err != nil {
		return nil, fmt.Errorf("failed to sign logout token: %w", err)
	}

	return &Message{
		ID:      jti,
		URL:     rc.LogoutURL.URL,
		Form:    url.Values{OIDCFormField: {token}},
		Payload: token,
	}, nil
}
