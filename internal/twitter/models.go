package twitter

import (
	"errors"
	"strconv"
	"strings"
)

const (
	// MaxMembersPerRequest is the largest number of users accepted by one bulk list membership call.
	MaxMembersPerRequest = 100
	// MaxIDsPerPage is the largest page size accepted by the cursored ID endpoints.
	MaxIDsPerPage = 5000

	// ListModePrivate hides the list from other accounts.
	ListModePrivate = "private"
	// ListModePublic exposes the list to other accounts.
	ListModePublic = "public"

	errMessageMissingCredentials = "twitter credentials incomplete"
	userIDSeparator              = ","
)

var errMissingCredentials = errors.New(errMessageMissingCredentials)

// UserID identifies a Twitter account.
type UserID int64

// String renders the identifier in its decimal form.
func (userID UserID) String() string {
	return strconv.FormatInt(int64(userID), 10)
}

// JoinUserIDs renders identifiers as the comma separated list expected by bulk endpoints.
func JoinUserIDs(userIDs []UserID) string {
	renderedIDs := make([]string, 0, len(userIDs))
	for _, userID := range userIDs {
		renderedIDs = append(renderedIDs, userID.String())
	}
	return strings.Join(renderedIDs, userIDSeparator)
}

// Credentials holds the OAuth 1.0a application and user secrets.
type Credentials struct {
	ConsumerKey       string `yaml:"consumer_key"`
	ConsumerSecret    string `yaml:"consumer_secret"`
	AccessToken       string `yaml:"access_token"`
	AccessTokenSecret string `yaml:"access_token_secret"`
}

// Validate reports whether every credential field is populated.
func (credentials Credentials) Validate() error {
	if strings.TrimSpace(credentials.ConsumerKey) == "" ||
		strings.TrimSpace(credentials.ConsumerSecret) == "" ||
		strings.TrimSpace(credentials.AccessToken) == "" ||
		strings.TrimSpace(credentials.AccessTokenSecret) == "" {
		return errMissingCredentials
	}
	return nil
}

// User is the subset of the user object consumed by the sync job.
type User struct {
	ID           UserID `json:"id"`
	IDString     string `json:"id_str"`
	ScreenName   string `json:"screen_name"`
	FriendsCount int    `json:"friends_count"`
}

// List describes a Twitter list owned by the authenticated account.
type List struct {
	ID          string `json:"id_str"`
	Name        string `json:"name"`
	Mode        string `json:"mode"`
	Description string `json:"description"`
	MemberCount int    `json:"member_count"`
}

// ListSpec carries the attributes of a list to create.
type ListSpec struct {
	Name        string
	Mode        string
	Description string
}

// IDPage is one cursored page of user identifiers.
type IDPage struct {
	IDs        []UserID
	NextCursor int64
}

type idsResponse struct {
	IDs        []UserID `json:"ids"`
	NextCursor int64    `json:"next_cursor"`
}

type usersResponse struct {
	Users      []User `json:"users"`
	NextCursor int64  `json:"next_cursor"`
}
