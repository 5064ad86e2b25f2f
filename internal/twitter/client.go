package twitter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	defaultBaseURLString = "https://api.twitter.com/1.1/"

	verifyCredentialsPath = "account/verify_credentials.json"
	friendIDsPath         = "friends/ids.json"
	listsPath             = "lists/list.json"
	createListPath        = "lists/create.json"
	listMembersPath       = "lists/members.json"
	addListMembersPath    = "lists/members/create_all.json"
	removeListMembersPath = "lists/members/destroy_all.json"
	showUserPath          = "users/show.json"

	parameterUserID          = "user_id"
	parameterListID          = "list_id"
	parameterCursor          = "cursor"
	parameterCount           = "count"
	parameterName            = "name"
	parameterMode            = "mode"
	parameterDescription     = "description"
	parameterSkipStatus      = "skip_status"
	parameterIncludeEntities = "include_entities"
	parameterValueTrue       = "true"
	parameterValueFalse      = "false"

	contentTypeHeaderName = "Content-Type"
	contentTypeForm       = "application/x-www-form-urlencoded"
	userAgentHeaderName   = "User-Agent"
	userAgentHeaderValue  = "listsync/1.0"

	maxResponseBytes             = 8 * 1024 * 1024
	maxErrorBodyBytes            = 64 * 1024
	defaultDialTimeout           = 5 * time.Second
	defaultTLSHandshakeTimeout   = 5 * time.Second
	defaultResponseHeaderTimeout = 30 * time.Second
	defaultHTTPTimeout           = 60 * time.Second

	errMessageParseBaseURL       = "parse base url"
	errMessageBuildRequest       = "build request"
	errMessageDecodeResponse     = "decode response"
	errMessageVerifyCredentials  = "verify credentials"
	errMessageFriendIDs          = "fetch friend ids"
	errMessageLists              = "fetch lists"
	errMessageCreateList         = "create list"
	errMessageListMembers        = "fetch list members"
	errMessageAddListMembers     = "add list members"
	errMessageRemoveListMembers  = "remove list members"
	errMessageShowUser           = "show user"
	errMessageEmptyListID        = "list id cannot be empty"
	errMessageEmptyListName      = "list name cannot be empty"
	errMessageTooManyMembersForm = "at most %d users per membership request, got %d"

	logMessageAPIRequest = "twitter api request"
	logFieldMethod       = "method"
	logFieldPath         = "path"
	logFieldStatus       = "status"
	logFieldElapsed      = "elapsed"
)

var (
	// ErrTooManyMembers is returned when a bulk membership call exceeds MaxMembersPerRequest.
	ErrTooManyMembers = errors.New("too many members for one request")

	errEmptyListID   = errors.New(errMessageEmptyListID)
	errEmptyListName = errors.New(errMessageEmptyListName)
)

// Config customizes a Client instance.
type Config struct {
	BaseURL string
	// Client must sign requests; see NewOAuthHTTPClient.
	Client *http.Client
	Logger *zap.Logger
}

// Client calls the Twitter REST API v1.1.
type Client struct {
	httpClient *http.Client
	baseURL    *url.URL
	logger     *zap.Logger
}

// NewClient constructs a Client. Relative endpoint paths are resolved against BaseURL.
func NewClient(configuration Config) (*Client, error) {
	baseURLString := configuration.BaseURL
	if strings.TrimSpace(baseURLString) == "" {
		baseURLString = defaultBaseURLString
	}
	if !strings.HasSuffix(baseURLString, "/") {
		baseURLString += "/"
	}
	parsedBaseURL, err := url.Parse(baseURLString)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errMessageParseBaseURL, err)
	}

	httpClient := configuration.Client
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultHTTPTimeout, Transport: defaultTransport()}
	}
	logger := configuration.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{httpClient: httpClient, baseURL: parsedBaseURL, logger: logger}, nil
}

// VerifyCredentials returns the authenticated user.
func (client *Client) VerifyCredentials(ctx context.Context) (User, error) {
	query := url.Values{}
	query.Set(parameterSkipStatus, parameterValueTrue)
	query.Set(parameterIncludeEntities, parameterValueFalse)

	var user User
	if err := client.do(ctx, http.MethodGet, verifyCredentialsPath, query, &user); err != nil {
		return User{}, fmt.Errorf("%s: %w", errMessageVerifyCredentials, err)
	}
	return user, nil
}

// FriendIDs returns one page of identifiers followed by userID.
func (client *Client) FriendIDs(ctx context.Context, userID UserID, cursor int64) (IDPage, error) {
	query := url.Values{}
	query.Set(parameterUserID, userID.String())
	query.Set(parameterCursor, strconv.FormatInt(cursor, 10))
	query.Set(parameterCount, strconv.Itoa(MaxIDsPerPage))

	var response idsResponse
	if err := client.do(ctx, http.MethodGet, friendIDsPath, query, &response); err != nil {
		return IDPage{}, fmt.Errorf("%s: %w", errMessageFriendIDs, err)
	}
	return IDPage{IDs: response.IDs, NextCursor: response.NextCursor}, nil
}

// Lists returns the lists owned by or subscribed to by the authenticated user.
func (client *Client) Lists(ctx context.Context) ([]List, error) {
	var lists []List
	if err := client.do(ctx, http.MethodGet, listsPath, url.Values{}, &lists); err != nil {
		return nil, fmt.Errorf("%s: %w", errMessageLists, err)
	}
	return lists, nil
}

// CreateList creates a list owned by the authenticated user.
func (client *Client) CreateList(ctx context.Context, spec ListSpec) (List, error) {
	if strings.TrimSpace(spec.Name) == "" {
		return List{}, errEmptyListName
	}
	mode := spec.Mode
	if mode == "" {
		mode = ListModePrivate
	}
	form := url.Values{}
	form.Set(parameterName, spec.Name)
	form.Set(parameterMode, mode)
	form.Set(parameterDescription, spec.Description)

	var list List
	if err := client.do(ctx, http.MethodPost, createListPath, form, &list); err != nil {
		return List{}, fmt.Errorf("%s: %w", errMessageCreateList, err)
	}
	return list, nil
}

// ListMemberIDs returns one page of member identifiers of listID.
func (client *Client) ListMemberIDs(ctx context.Context, listID string, cursor int64) (IDPage, error) {
	if strings.TrimSpace(listID) == "" {
		return IDPage{}, errEmptyListID
	}
	query := url.Values{}
	query.Set(parameterListID, listID)
	query.Set(parameterCursor, strconv.FormatInt(cursor, 10))
	query.Set(parameterCount, strconv.Itoa(MaxIDsPerPage))
	query.Set(parameterSkipStatus, parameterValueTrue)
	query.Set(parameterIncludeEntities, parameterValueFalse)

	var response usersResponse
	if err := client.do(ctx, http.MethodGet, listMembersPath, query, &response); err != nil {
		return IDPage{}, fmt.Errorf("%s: %w", errMessageListMembers, err)
	}
	memberIDs := make([]UserID, 0, len(response.Users))
	for _, member := range response.Users {
		memberIDs = append(memberIDs, member.ID)
	}
	return IDPage{IDs: memberIDs, NextCursor: response.NextCursor}, nil
}

// AddListMembers adds up to MaxMembersPerRequest users to listID.
func (client *Client) AddListMembers(ctx context.Context, listID string, userIDs []UserID) error {
	if err := client.mutateMembers(ctx, addListMembersPath, listID, userIDs); err != nil {
		return fmt.Errorf("%s: %w", errMessageAddListMembers, err)
	}
	return nil
}

// RemoveListMembers removes up to MaxMembersPerRequest users from listID.
func (client *Client) RemoveListMembers(ctx context.Context, listID string, userIDs []UserID) error {
	if err := client.mutateMembers(ctx, removeListMembersPath, listID, userIDs); err != nil {
		return fmt.Errorf("%s: %w", errMessageRemoveListMembers, err)
	}
	return nil
}

// User looks up a single account.
func (client *Client) User(ctx context.Context, userID UserID) (User, error) {
	query := url.Values{}
	query.Set(parameterUserID, userID.String())
	query.Set(parameterIncludeEntities, parameterValueFalse)

	var user User
	if err := client.do(ctx, http.MethodGet, showUserPath, query, &user); err != nil {
		return User{}, fmt.Errorf("%s: %w", errMessageShowUser, err)
	}
	return user, nil
}

func (client *Client) mutateMembers(ctx context.Context, path string, listID string, userIDs []UserID) error {
	if strings.TrimSpace(listID) == "" {
		return errEmptyListID
	}
	if len(userIDs) == 0 {
		return nil
	}
	if len(userIDs) > MaxMembersPerRequest {
		return fmt.Errorf("%w: "+errMessageTooManyMembersForm, ErrTooManyMembers, MaxMembersPerRequest, len(userIDs))
	}
	form := url.Values{}
	form.Set(parameterListID, listID)
	form.Set(parameterUserID, JoinUserIDs(userIDs))
	return client.do(ctx, http.MethodPost, path, form, nil)
}

func (client *Client) do(ctx context.Context, method string, path string, parameters url.Values, target any) error {
	endpointURL := client.baseURL.ResolveReference(&url.URL{Path: path})

	var requestBody io.Reader
	if method == http.MethodGet {
		endpointURL.RawQuery = parameters.Encode()
	} else {
		requestBody = strings.NewReader(parameters.Encode())
	}

	httpRequest, err := http.NewRequestWithContext(ctx, method, endpointURL.String(), requestBody)
	if err != nil {
		return fmt.Errorf("%s: %w", errMessageBuildRequest, err)
	}
	httpRequest.Header.Set(userAgentHeaderName, userAgentHeaderValue)
	if requestBody != nil {
		httpRequest.Header.Set(contentTypeHeaderName, contentTypeForm)
	}

	started := time.Now()
	httpResponse, err := client.httpClient.Do(httpRequest)
	if err != nil {
		return err
	}
	defer httpResponse.Body.Close()

	client.logger.Debug(logMessageAPIRequest,
		zap.String(logFieldMethod, method),
		zap.String(logFieldPath, path),
		zap.Int(logFieldStatus, httpResponse.StatusCode),
		zap.Duration(logFieldElapsed, time.Since(started)),
	)

	if httpResponse.StatusCode < 200 || httpResponse.StatusCode >= 300 {
		return decodeAPIError(httpResponse)
	}
	if target == nil {
		_, _ = io.Copy(io.Discard, io.LimitReader(httpResponse.Body, maxErrorBodyBytes))
		return nil
	}
	if err := json.NewDecoder(io.LimitReader(httpResponse.Body, maxResponseBytes)).Decode(target); err != nil {
		return fmt.Errorf("%s: %w", errMessageDecodeResponse, err)
	}
	return nil
}

func decodeAPIError(httpResponse *http.Response) error {
	apiError := &APIError{StatusCode: httpResponse.StatusCode}
	errorBody, readErr := io.ReadAll(io.LimitReader(httpResponse.Body, maxErrorBodyBytes))
	if readErr == nil && len(errorBody) > 0 {
		_ = json.Unmarshal(errorBody, apiError)
	}
	return apiError
}

func defaultTransport() http.RoundTripper {
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: defaultDialTimeout, KeepAlive: 30 * time.Second}).DialContext,
		TLSHandshakeTimeout:   defaultTLSHandshakeTimeout,
		IdleConnTimeout:       90 * time.Second,
		MaxIdleConns:          10,
		ResponseHeaderTimeout: defaultResponseHeaderTimeout,
	}
}
