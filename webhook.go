package haven

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// ============================================================================
// Webhook Types
// ============================================================================

// ModerationEvent is the payload the backend posts to a staff moderation
// endpoint when a report is filed or content is auto-flagged.
type ModerationEvent struct {
	Source    string           `json:"source"`
	Event     string           `json:"event"` // "report.created" or "content.flagged"
	Timestamp int64            `json:"timestamp"`
	Report    ModerationReport `json:"report"`
	Reporter  ModerationUser   `json:"reporter"`
	Target    ModerationTarget `json:"target"`
}

// ModerationReport carries the report row of a moderation event.
type ModerationReport struct {
	ID      string `json:"id"`
	Reason  string `json:"reason"`
	Details string `json:"details,omitempty"`
}

// ModerationUser identifies the reporting user.
type ModerationUser struct {
	ID       string `json:"id"`
	Nickname string `json:"nickname"`
	Role     Role   `json:"role"`
}

// ModerationTarget identifies the reported post, message, or user.
type ModerationTarget struct {
	Type     string `json:"type"` // "post", "message", or "user"
	ID       string `json:"id"`
	AuthorID string `json:"authorId,omitempty"`
	Content  string `json:"content,omitempty"`
}

// ModerationHandlerFunc is the callback signature for handling moderation
// events.
type ModerationHandlerFunc func(event *ModerationEvent) error

// ============================================================================
// Standalone Functions
// ============================================================================

// VerifyWebhookSignature verifies a webhook signature using HMAC-SHA256.
// Uses constant-time comparison to prevent timing attacks.
func VerifyWebhookSignature(body, signature, secret string) bool {
	if body == "" || signature == "" || secret == "" {
		return false
	}

	sig := signature
	if strings.HasPrefix(sig, "sha256=") {
		sig = sig[7:]
	}
	if sig == "" {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(body))
	expected := hex.EncodeToString(mac.Sum(nil))

	if len(sig) != len(expected) {
		return false
	}

	return subtle.ConstantTimeCompare([]byte(sig), []byte(expected)) == 1
}

// ParseModerationEvent parses a raw webhook body into a typed ModerationEvent.
func ParseModerationEvent(body string) (*ModerationEvent, error) {
	var event ModerationEvent
	if err := json.Unmarshal([]byte(body), &event); err != nil {
		return nil, fmt.Errorf("invalid JSON in webhook body: %w", err)
	}

	if event.Source != "haven" {
		return nil, fmt.Errorf("unknown webhook source: %s", event.Source)
	}
	if event.Event == "" {
		return nil, fmt.Errorf("missing event field in webhook payload")
	}
	if event.Report.ID == "" || event.Target.ID == "" {
		return nil, fmt.Errorf("missing required fields in webhook payload (report, target)")
	}

	return &event, nil
}

// ============================================================================
// ModerationWebhook
// ============================================================================

// ModerationWebhook handles verification, parsing, and dispatch of moderation
// webhook requests on a staff-operated endpoint.
type ModerationWebhook struct {
	secret  string
	onEvent ModerationHandlerFunc
}

// NewModerationWebhook creates a new webhook handler.
func NewModerationWebhook(secret string, onEvent ModerationHandlerFunc) (*ModerationWebhook, error) {
	if secret == "" {
		return nil, fmt.Errorf("webhook secret is required")
	}
	return &ModerationWebhook{
		secret:  secret,
		onEvent: onEvent,
	}, nil
}

// Verify verifies an HMAC-SHA256 signature.
func (w *ModerationWebhook) Verify(body, signature string) bool {
	return VerifyWebhookSignature(body, signature, w.secret)
}

// Parse parses a raw body into a typed ModerationEvent.
func (w *ModerationWebhook) Parse(body string) (*ModerationEvent, error) {
	return ParseModerationEvent(body)
}

// Handle processes a webhook request (verify + parse + call handler).
// Returns the status code and response body for the caller to write.
func (w *ModerationWebhook) Handle(body, signature string) (int, any) {
	if !w.Verify(body, signature) {
		return http.StatusUnauthorized, map[string]string{"error": "Invalid signature"}
	}

	event, err := w.Parse(body)
	if err != nil {
		return http.StatusBadRequest, map[string]string{"error": err.Error()}
	}

	if err := w.onEvent(event); err != nil {
		return http.StatusInternalServerError, map[string]string{"error": err.Error()}
	}

	return http.StatusOK, map[string]bool{"ok": true}
}

// HTTPHandler returns an http.Handler that processes webhook requests.
//
// Example:
//
//	wh, _ := haven.NewModerationWebhook("secret", handler)
//	http.Handle("/webhook", wh.HTTPHandler())
func (w *ModerationWebhook) HTTPHandler() http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			rw.Header().Set("Content-Type", "application/json")
			rw.WriteHeader(http.StatusMethodNotAllowed)
			json.NewEncoder(rw).Encode(map[string]string{"error": "Method not allowed"})
			return
		}

		bodyBytes, err := io.ReadAll(r.Body)
		if err != nil {
			rw.Header().Set("Content-Type", "application/json")
			rw.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(rw).Encode(map[string]string{"error": "Failed to read body"})
			return
		}
		defer r.Body.Close()

		body := string(bodyBytes)
		signature := r.Header.Get("X-Haven-Signature")

		statusCode, data := w.Handle(body, signature)

		rw.Header().Set("Content-Type", "application/json")
		rw.WriteHeader(statusCode)
		json.NewEncoder(rw).Encode(data)
	})
}

// HTTPHandlerFunc returns an http.HandlerFunc for convenience.
func (w *ModerationWebhook) HTTPHandlerFunc() http.HandlerFunc {
	return w.HTTPHandler().ServeHTTP
}
