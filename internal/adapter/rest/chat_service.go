package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"sellzy/internal/domain/entity"
	"sellzy/internal/domain/repository"
	"sellzy/pkg/auth"
	"sellzy/pkg/errors"
)

// ChatService talks to the external conversation/message service over REST.
// Every call carries the session bearer credential; the client enforces its
// own request timeout rather than trusting transport defaults.
type ChatService struct {
	baseURL    string
	credential *auth.Credential
	httpClient *http.Client
}

func NewChatService(baseURL string, credential *auth.Credential, timeout time.Duration) *ChatService {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &ChatService{
		baseURL:    baseURL,
		credential: credential,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type createConversationRequest struct {
	SellerID int64 `json:"sellerId,omitempty"`
	UserID   int64 `json:"userId,omitempty"`
}

type sendMessageRequest struct {
	ConversationID string `json:"conversationId"`
	Content        string `json:"content"`
}

func (s *ChatService) ListConversations(ctx context.Context) ([]*entity.Conversation, error) {
	respBody, err := s.doRequest(ctx, http.MethodGet, "/api/chat/conversations", nil)
	if err != nil {
		return nil, err
	}

	var conversations []*entity.Conversation
	if err := json.Unmarshal(respBody, &conversations); err != nil {
		return nil, errors.Internal("Failed to decode conversation list", err)
	}
	return conversations, nil
}

func (s *ChatService) CreateConversationWithSeller(ctx context.Context, sellerID int64) (*entity.Conversation, error) {
	return s.createConversation(ctx, createConversationRequest{SellerID: sellerID})
}

func (s *ChatService) CreateConversationWithCustomer(ctx context.Context, userID int64) (*entity.Conversation, error) {
	return s.createConversation(ctx, createConversationRequest{UserID: userID})
}

func (s *ChatService) createConversation(ctx context.Context, req createConversationRequest) (*entity.Conversation, error) {
	body, _ := json.Marshal(req)
	respBody, err := s.doRequest(ctx, http.MethodPost, "/api/chat/conversations", body)
	if err != nil {
		return nil, err
	}

	var conversation entity.Conversation
	if err := json.Unmarshal(respBody, &conversation); err != nil {
		return nil, errors.Internal("Failed to decode conversation", err)
	}
	return &conversation, nil
}

func (s *ChatService) ListMessages(ctx context.Context, conversationID string, page repository.MessagePage) ([]*entity.Message, error) {
	query := url.Values{}
	query.Set("page", strconv.Itoa(page.Page))
	query.Set("size", strconv.Itoa(page.Size))
	if !page.Before.IsZero() {
		query.Set("before", strconv.FormatInt(page.Before.UnixMilli(), 10))
	}

	path := fmt.Sprintf("/api/chat/conversations/%s/messages?%s", url.PathEscape(conversationID), query.Encode())
	respBody, err := s.doRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	var messages []*entity.Message
	if err := json.Unmarshal(respBody, &messages); err != nil {
		return nil, errors.Internal("Failed to decode message page", err)
	}
	for _, m := range messages {
		m.Delivery = entity.DeliveryConfirmed
	}
	return messages, nil
}

func (s *ChatService) MarkRead(ctx context.Context, conversationID string) (*entity.Conversation, error) {
	path := fmt.Sprintf("/api/chat/conversations/%s/read", url.PathEscape(conversationID))
	respBody, err := s.doRequest(ctx, http.MethodPatch, path, nil)
	if err != nil {
		return nil, err
	}

	var conversation entity.Conversation
	if err := json.Unmarshal(respBody, &conversation); err != nil {
		return nil, errors.Internal("Failed to decode conversation", err)
	}
	return &conversation, nil
}

func (s *ChatService) SendMessage(ctx context.Context, conversationID, content string) (*entity.Message, error) {
	body, _ := json.Marshal(sendMessageRequest{
		ConversationID: conversationID,
		Content:        content,
	})

	respBody, err := s.doRequest(ctx, http.MethodPost, "/api/chat/messages", body)
	if err != nil {
		return nil, err
	}

	var message entity.Message
	if err := json.Unmarshal(respBody, &message); err != nil {
		return nil, errors.Internal("Failed to decode message", err)
	}
	message.Delivery = entity.DeliveryConfirmed
	return &message, nil
}

func (s *ChatService) doRequest(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, reader)
	if err != nil {
		return nil, errors.Internal("Failed to build request", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if s.credential != nil && s.credential.Token != "" {
		req.Header.Set("Authorization", s.credential.BearerHeader())
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, errors.Unavailable("Chat service unreachable", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Internal("Failed to read response", err)
	}

	if resp.StatusCode >= 400 {
		var errResp struct {
			Message string `json:"message"`
		}
		json.Unmarshal(respBody, &errResp)
		if errResp.Message == "" {
			errResp.Message = fmt.Sprintf("chat service returned %d for %s %s", resp.StatusCode, method, path)
		}
		return nil, errors.FromStatus(resp.StatusCode, errResp.Message)
	}

	return respBody, nil
}

var _ repository.ChatService = (*ChatService)(nil)
