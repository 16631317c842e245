package collect

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// Gateway is the remote mailbox as seen by the sync engine.
type Gateway interface {
	// ListCandidateIDs returns up to MaxCandidates references. Provider and
	// transport errors are logged and produce an empty result; only a failed
	// credential refresh or a cancelled context is returned.
	ListCandidateIDs(ctx context.Context, labelIDs []string, since string) ([]Candidate, error)
	FetchDetails(ctx context.Context, candidates []Candidate) ([]BatchResult, error)
	ApplyLabelChanges(ctx context.Context, req ModifyRequest) error
	ListRemoteLabels(ctx context.Context) ([]*gmail.Label, error)
	Profile(ctx context.Context) (string, error)
}

// OAuthConfig returns the client configuration used both for the code
// exchange at login and for refreshing tokens afterwards.
func OAuthConfig(clientID, clientSecret string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint:     google.Endpoint,
		RedirectURL:  "postmessage",
		Scopes:       []string{gmail.GmailModifyScope, "email", "profile"},
	}
}

type GmailGateway struct {
	service *gmail.Service
	batch   *BatchClient
	logger  *slog.Logger
}

// NewGmailGateway builds a gateway authorized by tokenSource.
func NewGmailGateway(ctx context.Context, tokenSource oauth2.TokenSource) (*GmailGateway, error) {
	httpClient := oauth2.NewClient(ctx, tokenSource)
	service, err := gmail.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("failed to create gmail service: %w", err)
	}
	return NewGmailGatewayWithService(service, NewBatchClient(httpClient)), nil
}

func NewGmailGatewayWithService(service *gmail.Service, batch *BatchClient) *GmailGateway {
	return &GmailGateway{service: service, batch: batch, logger: slog.Default()}
}

func (g *GmailGateway) WithLogger(logger *slog.Logger) *GmailGateway {
	g.logger = logger
	g.batch.Logger = logger
	return g
}

func (g *GmailGateway) ListCandidateIDs(ctx context.Context, labelIDs []string, since string) ([]Candidate, error) {
	call := g.service.Users.Messages.List("me").Context(ctx).MaxResults(MaxCandidates)
	if len(labelIDs) > 0 {
		call = call.LabelIds(labelIDs...)
	}
	if since != "" {
		call = call.Q("after:" + since)
	}

	candidates := make([]Candidate, 0)
	for {
		resp, err := call.Do()
		if err != nil {
			if IsTokenExpired(err) || ctx.Err() != nil {
				return []Candidate{}, fmt.Errorf("failed to list messages: %w", err)
			}
			g.logger.Error("Failed to list messages",
				"labels", labelIDs,
				"since", since,
				"error", err)
			return []Candidate{}, nil
		}
		for _, m := range resp.Messages {
			candidates = append(candidates, Candidate{ID: m.Id, ThreadID: m.ThreadId})
		}
		if resp.NextPageToken == "" || len(candidates) >= MaxCandidates {
			break
		}
		call = call.PageToken(resp.NextPageToken)
	}
	if len(candidates) > MaxCandidates {
		candidates = candidates[:MaxCandidates]
	}
	return candidates, nil
}

func (g *GmailGateway) FetchDetails(ctx context.Context, candidates []Candidate) ([]BatchResult, error) {
	return g.batch.FetchMetadata(ctx, candidates)
}

// ApplyLabelChanges returns a *ProviderError when the provider rejects the
// request; any other error is a transport failure.
func (g *GmailGateway) ApplyLabelChanges(ctx context.Context, req ModifyRequest) error {
	modify := &gmail.BatchModifyMessagesRequest{
		Ids:            req.IDs,
		AddLabelIds:    req.AddLabelIDs,
		RemoveLabelIds: req.RemoveLabelIDs,
	}
	err := g.service.Users.Messages.BatchModify("me", modify).Context(ctx).Do()
	if err == nil {
		return nil
	}
	var googleErr *googleapi.Error
	if errors.As(err, &googleErr) && googleErr.Code >= http.StatusBadRequest {
		return newProviderError(googleErr)
	}
	return fmt.Errorf("failed to modify %d messages: %w", len(req.IDs), err)
}

func (g *GmailGateway) ListRemoteLabels(ctx context.Context) ([]*gmail.Label, error) {
	resp, err := g.service.Users.Labels.List("me").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to list labels: %w", err)
	}
	return resp.Labels, nil
}

// Profile returns the mailbox email address.
func (g *GmailGateway) Profile(ctx context.Context) (string, error) {
	profile, err := g.service.Users.GetProfile("me").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to get user profile from Gmail API: %w", err)
	}
	return profile.EmailAddress, nil
}
