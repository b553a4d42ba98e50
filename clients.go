package oauth2

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/ohmage/oauth2/domain"
	autherrors "github.com/ohmage/oauth2/errors"
)

// ClientService manages OAuth client registrations. The authorization
// engine itself only reads the registry; creating and updating clients is
// an owner-facing operation that lives here.
type ClientService struct {
	store        domain.ClientRepository
	requireHTTPS bool
	now          func() time.Time
}

// NewClientService creates a client management service. When requireHTTPS
// is set, registered redirect URIs must use the https scheme.
func NewClientService(store domain.ClientRepository, requireHTTPS bool) *ClientService {
	return &ClientService{
		store:        store,
		requireHTTPS: requireHTTPS,
		now:          time.Now,
	}
}

// RegisterClient creates a new client owned by the given user, minting
// its ID and shared secret. The returned client is the only place the
// secret is ever handed out in the clear.
func (s *ClientService) RegisterClient(
	ctx context.Context,
	ownerID string,
	name string,
	description string,
	redirectURI string,
) (*domain.OAuthClient, error) {
	if ownerID == "" {
		return nil, autherrors.NewAuthentication("no owning user was given")
	}
	if name == "" {
		return nil, autherrors.NewInvalidArgument("the client name is missing")
	}

	validatedURI, err := s.validateRedirectURI(redirectURI)
	if err != nil {
		return nil, err
	}

	client := &domain.OAuthClient{
		ID:                uuid.NewString(),
		Secret:            NewClientSecret(),
		Name:              name,
		Description:       description,
		RedirectURI:       validatedURI,
		Owner:             ownerID,
		CreationTimestamp: s.now().UnixMilli(),
	}

	if err := s.store.CreateClient(ctx, client); err != nil {
		return nil, fmt.Errorf("storing client: %w", err)
	}

	log.Info().Str("client_id", client.ID).Str("owner", ownerID).Msg("Registered OAuth client")

	return client, nil
}

// UpdateClient merges the non-empty fields into an existing registration.
// Only the owner may update a client. The redirect URI cannot change
// while a live code or token references the client through it, so the
// same validation as registration applies.
func (s *ClientService) UpdateClient(
	ctx context.Context,
	requestingUserID string,
	clientID string,
	name string,
	description string,
	redirectURI string,
) (*domain.OAuthClient, error) {
	if requestingUserID == "" {
		return nil, autherrors.NewAuthentication("no requesting user was given")
	}

	client, err := s.getClient(ctx, clientID)
	if err != nil {
		return nil, err
	}
	if client.Owner != requestingUserID {
		return nil, autherrors.NewInvalidArgument("the requesting user does not own this client")
	}

	if name != "" {
		client.Name = name
	}
	if description != "" {
		client.Description = description
	}
	if redirectURI != "" {
		validatedURI, err := s.validateRedirectURI(redirectURI)
		if err != nil {
			return nil, err
		}
		client.RedirectURI = validatedURI
	}

	if err := s.store.UpdateClient(ctx, client); err != nil {
		return nil, fmt.Errorf("updating client: %w", err)
	}
	return client, nil
}

// GetClient returns the public view of a registration: everything but
// the shared secret.
func (s *ClientService) GetClient(ctx context.Context, clientID string) (*domain.OAuthClient, error) {
	client, err := s.getClient(ctx, clientID)
	if err != nil {
		return nil, err
	}
	client.Secret = ""
	return client, nil
}

// ListClientIDs returns the IDs of the clients the given user owns.
func (s *ClientService) ListClientIDs(ctx context.Context, ownerID string) ([]string, error) {
	if ownerID == "" {
		return nil, autherrors.NewAuthentication("no requesting user was given")
	}
	ids, err := s.store.ListClientIDs(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("listing clients: %w", err)
	}
	return ids, nil
}

func (s *ClientService) getClient(ctx context.Context, clientID string) (*domain.OAuthClient, error) {
	if clientID == "" {
		return nil, autherrors.NewInvalidArgument("the client ID is missing")
	}
	client, err := s.store.GetClient(ctx, clientID)
	if err != nil {
		if errors.Is(err, domain.ErrClientNotFound) {
			return nil, autherrors.NewNotFound("the OAuth client is unknown")
		}
		return nil, fmt.Errorf("retrieving client: %w", err)
	}
	return client, nil
}

func (s *ClientService) validateRedirectURI(redirectURI string) (string, error) {
	if redirectURI == "" {
		return "", autherrors.NewInvalidArgument("the redirect URI is missing")
	}
	validatedURI, err := ValidateRedirectURI(redirectURI)
	if err != nil {
		return "", autherrors.NewInvalidArgument("the redirect URI is invalid: %v", err)
	}
	if s.requireHTTPS {
		u, _ := url.Parse(validatedURI)
		if u == nil || u.Scheme != "https" {
			return "", autherrors.NewInvalidArgument("the redirect URI is required to use https")
		}
	}
	return validatedURI, nil
}
