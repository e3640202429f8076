package main

import (
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"

	"github.com/go-jose/go-jose/v4"
	"github.com/platinummonkey/ssohub/pkg/config"
	"github.com/platinummonkey/ssohub/pkg/logout"
	"github.com/platinummonkey/ssohub/pkg/observability"
	"github.com/platinummonkey/ssohub/pkg/services"
	dsig "github.com/russellhaering/goxmldsig"
)

// setupDispatchers builds the dispatcher chain. OIDC relying parties get
// logout tokens when an OIDC signing key is configured; every other service
// gets a SAML LogoutRequest, signed when a SAML key pair is configured.
func setupDispatchers(cfg *config.Config, directory services.Directory, logger *observability.Logger,
	metrics *observability.Metrics) (*logout.ChainingDispatcher, error) {
	validator := logout.NewDefaultURLValidator()
	resolver := logout.NewChainingURLResolver(logout.NewDefaultURLResolver(validator, logger))
	sender := logout.NewHTTPSender(logout.HTTPSenderConfig{
		Timeout:   cfg.SLO.RequestTimeout,
		UserAgent: cfg.SLO.UserAgent,
	}, logger)

	var signer *dsig.SigningContext
	if cfg.SLO.SAMLSigningKeyFile != "" {
		cert, err := tls.LoadX509KeyPair(cfg.SLO.SAMLSigningCertFile, cfg.SLO.SAMLSigningKeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load SAML signing key pair: %w", err)
		}
		signer = dsig.NewDefaultSigningContext(dsig.TLSCertKeyStore(cert))
	}

	var dispatchers []logout.Dispatcher
	samlProtocols := []services.Protocol(nil)

	if cfg.SLO.OIDCSigningKeyFile != "" {
		key, err := loadPrivateKey(cfg.SLO.OIDCSigningKeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load OIDC signing key: %w", err)
		}
		builder, err := logout.NewOIDCLogoutTokenBuilder(cfg.Server.Issuer, jose.RS256, jose.JSONWebKey{
			Key:       key,
			KeyID:     cfg.SLO.OIDCKeyID,
			Algorithm: string(jose.RS256),
			Use:       "sig",
		})
		if err != nil {
			return nil, err
		}
		oidc, err := logout.NewDispatcher(logout.DispatcherConfig{
			Name:      "oidc",
			Protocols: []services.Protocol{services.ProtocolOIDC},
			Async:     cfg.SLO.Async,
			Directory: directory,
			Resolver:  resolver,
			Builder:   builder,
			Sender:    sender,
			Logger:    logger,
			Metrics:   metrics,
		})
		if err != nil {
			return nil, err
		}
		dispatchers = append(dispatchers, oidc)
		samlProtocols = []services.Protocol{services.ProtocolCAS, services.ProtocolSAML}
	}

	saml, err := logout.NewDispatcher(logout.DispatcherConfig{
		Name:      "saml",
		Protocols: samlProtocols,
		Async:     cfg.SLO.Async,
		Directory: directory,
		Resolver:  resolver,
		Builder:   logout.NewSAMLMessageBuilder(cfg.Server.Issuer, signer),
		Sender:    sender,
		Logger:    logger,
		Metrics:   metrics,
	})
	if err != nil {
		return nil, err
	}
	dispatchers = append(dispatchers, saml)

	return logout.NewChainingDispatcher(dispatchers...), nil
}

// loadPrivateKey reads an RSA private key in PKCS#1 or PKCS#8 PEM form
func loadPrivateKey(path string) (*rsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("%s: no PEM block found", path)
	}

	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("%s: expected an RSA private key, got %T", path, parsed)
	}
	return key, nil
}
