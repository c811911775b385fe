package expert

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"google.golang.org/genai"
)

func TestGenAIBackend_Invoke(t *testing.T) {
	var body string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		body = string(b)
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"candidates":[{"content":{"role":"model","parts":[{"text":"{\"assessment\":\"Likely sprain\",\"urgency\":\"LOW\",\"confidence\":0.7}"}]},"finishReason":"STOP"}]}`)
	}))
	defer srv.Close()

	client, err := NewGenAIClient(context.Background(), "test-key", func(c *genai.ClientConfig) {
		c.HTTPOptions = genai.HTTPOptions{BaseURL: srv.URL}
	})
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	b := NewGenAIBackend(client, "gemini-flash", "gemini-2.5-flash", WithStructuredOutput(), WithTemperature(0.2))

	text, err := b.Invoke(context.Background(), "ankle hurts", &Image{Data: pngBytes, MIMEType: "image/png"})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	op := ParseOpinion(b.Name(), text, DefaultVote("council"))
	if op.Urgency != "LOW" || op.Text != "Likely sprain" {
		t.Errorf("opinion: %+v", op)
	}
	if !strings.Contains(body, "application/json") {
		t.Errorf("structured output not requested: %s", body)
	}
	if !strings.Contains(body, "ankle hurts") {
		t.Errorf("prompt missing from request: %s", body)
	}
}

func TestGenAIBackend_Error(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":{"code":429,"message":"quota","status":"RESOURCE_EXHAUSTED"}}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client, err := NewGenAIClient(context.Background(), "test-key", func(c *genai.ClientConfig) {
		c.HTTPOptions = genai.HTTPOptions{BaseURL: srv.URL}
	})
	if err != nil {
		t.Fatal(err)
	}
	b := NewGenAIBackend(client, "gemini-flash", "gemini-2.5-flash")
	if _, err := b.Invoke(context.Background(), "x", nil); err == nil {
		t.Fatal("expected error for 429")
	}
}

func TestGenerateConfig(t *testing.T) {
	plain := NewGenAIBackend(nil, "n", "m").generateConfig()
	if plain.ResponseSchema != nil || plain.ResponseMIMEType != "" {
		t.Error("plain backend should not request JSON")
	}
	if *plain.Temperature != 0.3 {
		t.Errorf("default temperature: got %v", *plain.Temperature)
	}
	structured := NewGenAIBackend(nil, "n", "m", WithStructuredOutput()).generateConfig()
	if structured.ResponseSchema != OpinionSchema {
		t.Error("structured backend should carry the opinion schema")
	}
}

func TestNewGenAIClient_RequiresKey(t *testing.T) {
	if _, err := NewGenAIClient(context.Background(), ""); err == nil {
		t.Fatal("expected error")
	}
}
