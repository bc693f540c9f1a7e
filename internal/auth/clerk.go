package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker/v2"
)

// clerkUser is the subset of Clerk's Backend API user object we read.
type clerkUser struct {
	ID                    string                 `json:"id"`
	PrimaryEmailAddressID string                 `json:"primary_email_address_id"`
	EmailAddresses        []clerkEmailAddress    `json:"email_addresses"`
	PublicMetadata        map[string]interface{} `json:"public_metadata"`
}

type clerkEmailAddress struct {
	ID           string `json:"id"`
	EmailAddress string `json:"email_address"`
}

func (u *clerkUser) primaryEmail() string {
	for _, e := range u.EmailAddresses {
		if e.ID == u.PrimaryEmailAddressID {
			return e.EmailAddress
		}
	}
	if len(u.EmailAddresses) > 0 {
		return u.EmailAddresses[0].EmailAddress
	}
	return ""
}

// ClerkClient reads user profiles from Clerk's Backend API. Calls go through a circuit
// breaker so a provider outage fails fast instead of piling up requests.
type ClerkClient struct {
	baseURL    string
	secretKey  string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[*Profile]
}

// NewClerkClient creates a ClerkClient. baseURL is e.g. "https://api.clerk.com/v1".
func NewClerkClient(baseURL, secretKey string, httpClient *http.Client) *ClerkClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &ClerkClient{
		baseURL:    baseURL,
		secretKey:  secretKey,
		httpClient: httpClient,
		breaker:    newBreaker("clerk-users"),
	}
}

func newBreaker(name string) *gobreaker.CircuitBreaker[*Profile] {
	var st gobreaker.Settings
	st.Name = name
	st.Timeout = 30 * time.Second
	st.ReadyToTrip = func(counts gobreaker.Counts) bool {
		failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
		return counts.Requests >= 3 && failureRatio >= 0.6
	}
	// A missing user is an answer, not an outage.
	st.IsSuccessful = func(err error) bool {
		return err == nil || err == ErrUserNotFound
	}
	st.OnStateChange = func(name string, from, to gobreaker.State) {
		log.Warn().Str("component", "auth").Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state changed")
	}
	return gobreaker.NewCircuitBreaker[*Profile](st)
}

// GetProfile fetches the user and maps public_metadata.role to a Role.
func (c *ClerkClient) GetProfile(ctx context.Context, userID string) (*Profile, error) {
	return c.breaker.Execute(func() (*Profile, error) {
		return c.fetchUser(ctx, userID)
	})
}

func (c *ClerkClient) fetchUser(ctx context.Context, userID string) (*Profile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/users/"+url.PathEscape(userID), nil)
	if err != nil {
		return nil, fmt.Errorf("build user request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrUserNotFound
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("get user: unexpected status %d", resp.StatusCode)
	}

	var u clerkUser
	if err := json.NewDecoder(resp.Body).Decode(&u); err != nil {
		return nil, fmt.Errorf("decode user: %w", err)
	}

	return &Profile{
		UserID: u.ID,
		Email:  u.primaryEmail(),
		Role:   ParseRole(u.PublicMetadata["role"]),
	}, nil
}
