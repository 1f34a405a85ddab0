package contextstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// RESTStore implements Store against a hosted identity/context service.
// Requests authenticate with a service key header; user credentials are only
// forwarded on the identity-resolution call.
type RESTStore struct {
	baseURL    string
	serviceKey string
	httpClient *http.Client
}

// RESTOption configures the RESTStore.
type RESTOption func(*RESTStore)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) RESTOption {
	return func(s *RESTStore) {
		s.httpClient = c
	}
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(timeout time.Duration) RESTOption {
	return func(s *RESTStore) {
		s.httpClient.Timeout = timeout
	}
}

// NewRESTStore creates a store client for the given service base URL and key.
func NewRESTStore(baseURL, serviceKey string, opts ...RESTOption) *RESTStore {
	s := &RESTStore{
		baseURL:    strings.TrimRight(baseURL, "/"),
		serviceKey: serviceKey,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ResolveUser exchanges the bearer credential for a user ID.
func (s *RESTStore) ResolveUser(ctx context.Context, token string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/auth/v1/user", nil)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("apikey", s.serviceKey)
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("identity request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return "", ErrUnauthenticated
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("identity service status %d: %s", resp.StatusCode, string(body))
	}

	var user struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return "", fmt.Errorf("parsing identity response: %w", err)
	}
	if user.ID == "" {
		return "", ErrUnauthenticated
	}
	return user.ID, nil
}

// CheckQuota invokes the store's quota predicate.
func (s *RESTStore) CheckQuota(ctx context.Context, userID string) (QuotaStatus, error) {
	var status QuotaStatus
	err := s.post(ctx, "/rest/v1/rpc/check_message_limit", map[string]string{"p_user_id": userID}, &status)
	if err != nil {
		return QuotaStatus{}, err
	}
	return status, nil
}

// IncrementQuota invokes the store's atomic counter increment.
func (s *RESTStore) IncrementQuota(ctx context.Context, userID string) error {
	return s.post(ctx, "/rest/v1/rpc/increment_message_count", map[string]string{"p_user_id": userID}, nil)
}

// GetIntakeProfile fetches the intake survey snapshot, nil when absent.
func (s *RESTStore) GetIntakeProfile(ctx context.Context, userID string) (*IntakeProfile, error) {
	var rows []IntakeProfile
	q := "/rest/v1/intake_profiles?user_id=eq." + url.QueryEscape(userID) + "&limit=1"
	if err := s.get(ctx, q, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 || rows[0].Empty() {
		return nil, nil
	}
	return &rows[0], nil
}

// ListMemories fetches active records, ranked server-side.
func (s *RESTStore) ListMemories(ctx context.Context, userID string, limit int) ([]MemoryRecord, error) {
	var rows []MemoryRecord
	q := fmt.Sprintf("/rest/v1/user_memories?user_id=eq.%s&is_active=eq.true&order=confidence.desc,created_at.desc&limit=%d",
		url.QueryEscape(userID), limit)
	if err := s.get(ctx, q, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// HasSimilarMemory fetches same-type active records and checks overlap locally.
// The hosted store has no substring RPC, so this is two round trips worst case.
func (s *RESTStore) HasSimilarMemory(ctx context.Context, userID string, memType MemoryType, prefix string) (bool, error) {
	var rows []MemoryRecord
	q := fmt.Sprintf("/rest/v1/user_memories?user_id=eq.%s&memory_type=eq.%s&is_active=eq.true&select=content",
		url.QueryEscape(userID), url.QueryEscape(string(memType)))
	if err := s.get(ctx, q, &rows); err != nil {
		return false, err
	}
	needle := strings.ToLower(prefix)
	for _, r := range rows {
		if strings.Contains(strings.ToLower(r.Content), needle) {
			return true, nil
		}
	}
	return false, nil
}

// InsertMemory persists a new record.
func (s *RESTStore) InsertMemory(ctx context.Context, rec MemoryRecord) error {
	return s.post(ctx, "/rest/v1/user_memories", rec, nil)
}

// =============================================================================
// HTTP Helpers
// =============================================================================

func (s *RESTStore) get(ctx context.Context, path string, result any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	s.setServiceHeaders(req)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}
	if result != nil {
		if err := json.Unmarshal(body, result); err != nil {
			return fmt.Errorf("parsing response: %w", err)
		}
	}
	return nil
}

func (s *RESTStore) post(ctx context.Context, path string, payload, result any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	s.setServiceHeaders(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody))
	}
	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("parsing response: %w", err)
		}
	}
	return nil
}

func (s *RESTStore) setServiceHeaders(req *http.Request) {
	req.Header.Set("apikey", s.serviceKey)
	req.Header.Set("Authorization", "Bearer "+s.serviceKey)
	req.Header.Set("Accept", "application/json")
}
