package chatclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
)

// restClient talks to the chat REST collaborator. Timeouts are the ambient
// http.Client's concern; callers decide whether an error is surfaced or
// swallowed at their own boundary.
type restClient struct {
	baseURL string
	token   string
	http    *http.Client
}

func newRESTClient(baseURL, token string, client *http.Client) *restClient {
	if client == nil {
		client = http.DefaultClient
	}
	return &restClient{baseURL: baseURL, token: token, http: client}
}

type apiEnvelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	HasMore *bool           `json:"has_more,omitempty"`
}

func (r *restClient) do(ctx context.Context, method, path string, body io.Reader, contentType string) (*apiEnvelope, error) {
	req, err := http.NewRequestWithContext(ctx, method, r.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+r.token)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := r.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var env apiEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("%s %s: decode response: %w", method, path, err)
	}
	if resp.StatusCode >= 400 || !env.Success {
		if env.Message == "" {
			env.Message = resp.Status
		}
		return nil, fmt.Errorf("%s %s: %s", method, path, env.Message)
	}
	return &env, nil
}

func (r *restClient) getJSON(ctx context.Context, path string, out interface{}) error {
	env, err := r.do(ctx, http.MethodGet, path, nil, "")
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(env.Data, out)
}

func (r *restClient) postJSON(ctx context.Context, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}
	env, err := r.do(ctx, http.MethodPost, path, body, "application/json")
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(env.Data, out)
}

// Conversations fetches the full directory.
func (r *restClient) Conversations(ctx context.Context) ([]Conversation, error) {
	var rows []struct {
		ID          string          `json:"id"`
		PartnerID   string          `json:"partner_id"`
		Type        string          `json:"type"`
		ListingID   *uint           `json:"listing_id"`
		LastMessage string          `json:"last_message"`
		UpdatedAt   json.RawMessage `json:"last_message_time"`
		UnreadCount int             `json:"unread_count"`
		Partner     *struct {
			Name   string `json:"name"`
			Mobile string `json:"mobile"`
		} `json:"partner"`
	}
	if err := r.getJSON(ctx, "/api/chat/conversations", &rows); err != nil {
		return nil, err
	}

	out := make([]Conversation, 0, len(rows))
	for _, row := range rows {
		conv := Conversation{
			ID:          row.ID,
			PartnerID:   row.PartnerID,
			Type:        row.Type,
			ListingID:   row.ListingID,
			LastMessage: row.LastMessage,
			UnreadCount: row.UnreadCount,
		}
		conv.LastMessageTime = timestamp(map[string]json.RawMessage{"t": row.UpdatedAt}, "t")
		if row.Partner != nil {
			conv.PartnerName = row.Partner.Name
			conv.PartnerHandle = row.Partner.Mobile
		}
		out = append(out, conv)
	}
	return out, nil
}

// Messages fetches one history page, newest first, as the server returns it.
func (r *restClient) Messages(ctx context.Context, conversationID string, page, size int) ([]ChatMessage, error) {
	path := fmt.Sprintf("/api/chat/conversations/%s/messages?page=%d&size=%d",
		url.PathEscape(conversationID), page, size)

	var rows []json.RawMessage
	if err := r.getJSON(ctx, path, &rows); err != nil {
		return nil, err
	}

	out := make([]ChatMessage, 0, len(rows))
	for _, row := range rows {
		msg, err := NormalizeMessage(row)
		if err != nil {
			continue
		}
		out = append(out, msg)
	}
	return out, nil
}

// CreateConversation opens (or returns) a thread with the partner.
func (r *restClient) CreateConversation(ctx context.Context, partnerID, convType string, listingID *uint) (Conversation, error) {
	req := map[string]interface{}{"partner_id": partnerID}
	if convType != "" {
		req["type"] = convType
	}
	if listingID != nil {
		req["listing_id"] = *listingID
	}

	var row struct {
		ID        string `json:"id"`
		PartnerID string `json:"partner_id"`
		Type      string `json:"type"`
	}
	if err := r.postJSON(ctx, "/api/chat/conversations", req, &row); err != nil {
		return Conversation{}, err
	}
	return Conversation{ID: row.ID, PartnerID: row.PartnerID, Type: row.Type}, nil
}

// SendMessage is the REST fallback used while the socket is down.
func (r *restClient) SendMessage(ctx context.Context, msg ChatMessage) (ChatMessage, error) {
	req := map[string]interface{}{
		"message":    msg.Text,
		"type":       string(msg.Kind),
		"client_ref": msg.ClientRef,
	}
	if msg.Attachment != nil {
		req["attachment"] = msg.Attachment
	}

	path := fmt.Sprintf("/api/chat/conversations/%s/messages", url.PathEscape(msg.ConversationID))
	var row json.RawMessage
	if err := r.postJSON(ctx, path, req, &row); err != nil {
		return ChatMessage{}, err
	}
	return NormalizeMessage(row)
}

// MarkRead acknowledges the conversation as read.
func (r *restClient) MarkRead(ctx context.Context, conversationID string) error {
	path := fmt.Sprintf("/api/chat/conversations/%s/read", url.PathEscape(conversationID))
	_, err := r.do(ctx, http.MethodPatch, path, nil, "")
	return err
}

// UnreadTotal returns the unread count across all conversations.
func (r *restClient) UnreadTotal(ctx context.Context) (int, error) {
	var count int
	if err := r.getJSON(ctx, "/api/chat/unread", &count); err != nil {
		return 0, err
	}
	return count, nil
}

// PresenceSnapshot fetches handle -> online for session start.
func (r *restClient) PresenceSnapshot(ctx context.Context) (map[string]bool, error) {
	var snap map[string]bool
	if err := r.getJSON(ctx, "/api/chat/presence", &snap); err != nil {
		return nil, err
	}
	return snap, nil
}

// SearchUsers filters the user directory.
func (r *restClient) SearchUsers(ctx context.Context, query, role string) ([]ChatUser, error) {
	q := url.Values{}
	if query != "" {
		q.Set("q", query)
	}
	if role != "" {
		q.Set("role", role)
	}
	path := "/api/chat/users"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var users []ChatUser
	if err := r.getJSON(ctx, path, &users); err != nil {
		return nil, err
	}
	return users, nil
}

// Upload sends a file as multipart and returns its stored metadata. Unlike
// fetches, upload errors go straight back to the caller.
func (r *restClient) Upload(ctx context.Context, filePath string) (Attachment, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return Attachment{}, err
	}
	defer f.Close()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", filepath.Base(filePath))
	if err != nil {
		return Attachment{}, err
	}
	if _, err := io.Copy(part, f); err != nil {
		return Attachment{}, err
	}
	if err := w.Close(); err != nil {
		return Attachment{}, err
	}

	env, err := r.do(ctx, http.MethodPost, "/api/chat/upload", &buf, w.FormDataContentType())
	if err != nil {
		return Attachment{}, err
	}

	var raw struct {
		URL  string          `json:"url"`
		Name string          `json:"name"`
		Size json.RawMessage `json:"size"`
		Mime string          `json:"mime"`
	}
	if err := json.Unmarshal(env.Data, &raw); err != nil {
		return Attachment{}, err
	}
	att := Attachment{URL: raw.URL, Name: raw.Name, Mime: raw.Mime}
	if len(raw.Size) > 0 {
		att.Size, _ = strconv.ParseInt(string(bytes.Trim(raw.Size, `"`)), 10, 64)
	}
	return att, nil
}
