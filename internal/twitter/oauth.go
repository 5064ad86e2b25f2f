package twitter

import (
	"context"
	"net/http"

	"github.com/dghubble/oauth1"
)

// NewOAuthHTTPClient returns an http.Client that signs every request with OAuth 1.0a user credentials.
func NewOAuthHTTPClient(ctx context.Context, credentials Credentials) (*http.Client, error) {
	if err := credentials.Validate(); err != nil {
		return nil, err
	}
	baseClient := &http.Client{Transport: defaultTransport()}
	signingContext := context.WithValue(ctx, oauth1.HTTPClient, baseClient)

	oauthConfig := oauth1.NewConfig(credentials.ConsumerKey, credentials.ConsumerSecret)
	accessToken := oauth1.NewToken(credentials.AccessToken, credentials.AccessTokenSecret)

	signingClient := oauthConfig.Client(signingContext, accessToken)
	signingClient.Timeout = defaultHTTPTimeout
	return signingClient, nil
}
