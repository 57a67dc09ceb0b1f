package twiliowhatsapp

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"errors"
	"sort"
	"testing"
)

func TestMockClient_SendMessage(t *testing.T) {
	ctx := context.Background()
	mock := NewMockClient()

	if err := mock.SendMessage(ctx, "12345", "Hello Test"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	msgs := mock.Messages()
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	if msgs[0].Body != "Hello Test" {
		t.Errorf("expected body %q, got %q", "Hello Test", msgs[0].Body)
	}
}

func TestNewClientRequiresCredentials(t *testing.T) {
	t.Setenv("TWILIO_ACCOUNT_SID", "")
	t.Setenv("TWILIO_AUTH_TOKEN", "")
	t.Setenv("TWILIO_FROM_NUMBER", "")

	if _, err := NewClient(WithFromWhats("+15550000000")); !errors.Is(err, ErrMissingCredentials) {
		t.Errorf("NewClient without credentials = %v", err)
	}
	if _, err := NewClient(WithAccountSID("AC123"), WithAuthToken("token")); err == nil {
		t.Error("NewClient without a from number should fail")
	}
}

func TestResolveOpts(t *testing.T) {
	t.Setenv("TWILIO_ACCOUNT_SID", "ACenv")
	t.Setenv("TWILIO_AUTH_TOKEN", "envtoken")
	t.Setenv("TWILIO_FROM_NUMBER", "+15551112222")

	cfg := resolveOpts([]Option{WithAuthToken("flagtoken")})
	if cfg.AccountSID != "ACenv" || cfg.AuthToken != "flagtoken" {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.FromWhats != "whatsapp:+15551112222" {
		t.Errorf("FromWhats = %q", cfg.FromWhats)
	}

	cfg = resolveOpts([]Option{WithFromWhats("whatsapp:+1999")})
	if cfg.FromWhats != "whatsapp:+1999" {
		t.Errorf("prefixed FromWhats = %q", cfg.FromWhats)
	}
}

// sign computes X-Twilio-Signature: base64(HMAC-SHA1(token, url + sorted key/value pairs)).
func sign(token, url string, params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	data := url
	for _, k := range keys {
		data += k + params[k]
	}
	mac := hmac.New(sha1.New, []byte(token))
	mac.Write([]byte(data))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func TestValidateWebhook(t *testing.T) {
	c, err := NewClient(WithAccountSID("AC123"), WithAuthToken("secret"), WithFromWhats("+15550000000"))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	url := "https://forge.example.com/webhooks/twilio"
	params := map[string]string{"From": "whatsapp:+15551234567", "Body": "/enhance write a poem"}

	if !c.ValidateWebhook(url, params, sign("secret", url, params)) {
		t.Error("valid signature rejected")
	}
	if c.ValidateWebhook(url, params, sign("other", url, params)) {
		t.Error("signature with wrong token accepted")
	}
	params["Body"] = "tampered"
	if c.ValidateWebhook(url, params, sign("secret", url, map[string]string{"From": "whatsapp:+15551234567", "Body": "/enhance write a poem"})) {
		t.Error("tampered params accepted")
	}
}
