package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const (
	googleUserInfoURL = "https://openidconnect.googleapis.com/v1/userinfo"
	googlePeopleURL   = "https://people.googleapis.com/v1/people/me?personFields=phoneNumbers"
	unknownFullName   = "Unknown"
)

// GoogleConfig configures GoogleStrategy. The URL fields default to Google's endpoints.
type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Endpoint     oauth2.Endpoint
	UserInfoURL  string
	PeopleURL    string
}

// GoogleStrategy signs users in with Google.
type GoogleStrategy struct {
	cfg         *oauth2.Config
	userInfoURL string
	peopleURL   string
}

// NewGoogleStrategy returns a Google strategy, or nil when no client id is configured.
func NewGoogleStrategy(c GoogleConfig) *GoogleStrategy {
	if c.ClientID == "" {
		return nil
	}
	endpoint := c.Endpoint
	if endpoint.AuthURL == "" {
		endpoint = google.Endpoint
	}
	s := &GoogleStrategy{
		cfg: &oauth2.Config{
			ClientID:     c.ClientID,
			ClientSecret: c.ClientSecret,
			RedirectURL:  c.RedirectURL,
			Endpoint:     endpoint,
			Scopes: []string{
				"https://www.googleapis.com/auth/userinfo.profile",
				"https://www.googleapis.com/auth/userinfo.email",
				"https://www.googleapis.com/auth/user.phonenumbers.read",
			},
		},
		userInfoURL: c.UserInfoURL,
		peopleURL:   c.PeopleURL,
	}
	if s.userInfoURL == "" {
		s.userInfoURL = googleUserInfoURL
	}
	if s.peopleURL == "" {
		s.peopleURL = googlePeopleURL
	}
	return s
}

func (g *GoogleStrategy) Provider() Provider { return ProviderGoogle }

func (g *GoogleStrategy) AuthURL(state string) string {
	return g.cfg.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

type googleUserInfo struct {
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
}

type googlePerson struct {
	PhoneNumbers []struct {
		Value string `json:"value"`
	} `json:"phoneNumbers"`
}

// Exchange redeems code and reads the profile. The phone number is best-effort: a People
// API failure leaves it empty.
func (g *GoogleStrategy) Exchange(ctx context.Context, code string) (*ExternalIdentity, error) {
	if code == "" {
		return nil, fmt.Errorf("%w: empty authorization code", ErrExchange)
	}
	tok, err := g.cfg.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExchange, err)
	}
	client := g.cfg.Client(ctx, tok)

	var info googleUserInfo
	if err := getJSON(ctx, client, g.userInfoURL, &info); err != nil {
		return nil, fmt.Errorf("%w: userinfo: %v", ErrExchange, err)
	}
	id := &ExternalIdentity{
		Provider:  ProviderGoogle,
		Email:     info.Email,
		FullName:  info.Name,
		AvatarURL: info.Picture,
	}
	if id.FullName == "" {
		id.FullName = unknownFullName
	}

	var person googlePerson
	if err := getJSON(ctx, client, g.peopleURL, &person); err != nil {
		log.Printf("oauth: google people lookup: %v", err)
	} else if len(person.PhoneNumbers) > 0 {
		id.PhoneNumber = person.PhoneNumbers[0].Value
	}
	return id, nil
}

func getJSON(ctx context.Context, client *http.Client, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: %s", url, resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
