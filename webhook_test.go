package haven

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// ============================================================================
// Test Helpers
// ============================================================================

const testSecret = "test-webhook-secret-key"

func makeTestSignature(body, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(body))
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func makeTestEvent() map[string]any {
	return map[string]any{
		"source":    "haven",
		"event":     "report.created",
		"timestamp": 1700000000,
		"report": map[string]any{
			"id":     "rep-001",
			"reason": "harassment",
		},
		"reporter": map[string]any{
			"id":       "user-001",
			"nickname": "casey",
			"role":     "teen",
		},
		"target": map[string]any{
			"type":     "post",
			"id":       "post-001",
			"authorId": "user-002",
			"content":  "reported content",
		},
	}
}

func makeTestEventString() string {
	b, _ := json.Marshal(makeTestEvent())
	return string(b)
}

// ============================================================================
// VerifyWebhookSignature
// ============================================================================

func TestVerifyWebhookSignature(t *testing.T) {
	t.Run("valid signature", func(t *testing.T) {
		body := makeTestEventString()
		sig := makeTestSignature(body, testSecret)
		if !VerifyWebhookSignature(body, sig, testSecret) {
			t.Fatal("expected valid signature")
		}
	})

	t.Run("valid without prefix", func(t *testing.T) {
		body := makeTestEventString()
		sig := strings.TrimPrefix(makeTestSignature(body, testSecret), "sha256=")
		if !VerifyWebhookSignature(body, sig, testSecret) {
			t.Fatal("expected valid signature without prefix")
		}
	})

	t.Run("wrong signature", func(t *testing.T) {
		body := makeTestEventString()
		sig := "sha256=" + strings.Repeat("0", 64)
		if VerifyWebhookSignature(body, sig, testSecret) {
			t.Fatal("expected invalid signature")
		}
	})

	t.Run("wrong secret", func(t *testing.T) {
		body := makeTestEventString()
		sig := makeTestSignature(body, "wrong-secret")
		if VerifyWebhookSignature(body, sig, testSecret) {
			t.Fatal("expected invalid signature with wrong secret")
		}
	})

	t.Run("tampered body", func(t *testing.T) {
		body := makeTestEventString()
		sig := makeTestSignature(body, testSecret)
		if VerifyWebhookSignature(body+"x", sig, testSecret) {
			t.Fatal("expected invalid signature for tampered body")
		}
	})

	t.Run("empty inputs", func(t *testing.T) {
		if VerifyWebhookSignature("", "sig", testSecret) ||
			VerifyWebhookSignature("body", "", testSecret) ||
			VerifyWebhookSignature("body", "sig", "") {
			t.Fatal("expected invalid for empty inputs")
		}
	})
}

// ============================================================================
// ParseModerationEvent
// ============================================================================

func TestParseModerationEvent(t *testing.T) {
	t.Run("valid event", func(t *testing.T) {
		event, err := ParseModerationEvent(makeTestEventString())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if event.Event != "report.created" {
			t.Errorf("expected report.created, got %s", event.Event)
		}
		if event.Report.Reason != "harassment" {
			t.Errorf("expected reason harassment, got %s", event.Report.Reason)
		}
		if event.Target.Type != "post" || event.Target.ID != "post-001" {
			t.Errorf("unexpected target: %+v", event.Target)
		}
	})

	t.Run("invalid json", func(t *testing.T) {
		if _, err := ParseModerationEvent("{not json"); err == nil {
			t.Fatal("expected error for invalid JSON")
		}
	})

	t.Run("unknown source", func(t *testing.T) {
		raw := makeTestEvent()
		raw["source"] = "elsewhere"
		b, _ := json.Marshal(raw)
		if _, err := ParseModerationEvent(string(b)); err == nil {
			t.Fatal("expected error for unknown source")
		}
	})

	t.Run("missing report id", func(t *testing.T) {
		raw := makeTestEvent()
		raw["report"] = map[string]any{"reason": "spam"}
		b, _ := json.Marshal(raw)
		if _, err := ParseModerationEvent(string(b)); err == nil {
			t.Fatal("expected error for missing report id")
		}
	})
}

// ============================================================================
// ModerationWebhook HTTP handling
// ============================================================================

func TestModerationWebhookHTTPHandler(t *testing.T) {
	received := []*ModerationEvent{}
	wh, err := NewModerationWebhook(testSecret, func(event *ModerationEvent) error {
		received = append(received, event)
		return nil
	})
	if err != nil {
		t.Fatalf("NewModerationWebhook returned error: %v", err)
	}
	srv := httptest.NewServer(wh.HTTPHandler())
	defer srv.Close()

	t.Run("valid request", func(t *testing.T) {
		body := makeTestEventString()
		req, _ := http.NewRequest("POST", srv.URL, strings.NewReader(body))
		req.Header.Set("X-Haven-Signature", makeTestSignature(body, testSecret))

		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected 200, got %d", resp.StatusCode)
		}
		if len(received) != 1 {
			t.Fatalf("expected 1 dispatched event, got %d", len(received))
		}
	})

	t.Run("bad signature", func(t *testing.T) {
		body := makeTestEventString()
		req, _ := http.NewRequest("POST", srv.URL, strings.NewReader(body))
		req.Header.Set("X-Haven-Signature", "sha256="+strings.Repeat("0", 64))

		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", resp.StatusCode)
		}
	})

	t.Run("wrong method", func(t *testing.T) {
		resp, err := http.Get(srv.URL)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusMethodNotAllowed {
			t.Fatalf("expected 405, got %d", resp.StatusCode)
		}
	})
}

func TestNewModerationWebhookRequiresSecret(t *testing.T) {
	if _, err := NewModerationWebhook("", nil); err == nil {
		t.Fatal("expected error for empty secret")
	}
}
