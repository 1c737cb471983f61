package services_test

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rimnsai/rimns-web-ui/internal/services"
)

func TestOllamaStream(t *testing.T) {
	var gotBody struct {
		Model    string `json:"model"`
		Messages []struct {
			Role    string   `json:"role"`
			Content string   `json:"content"`
			Images  []string `json:"images"`
		} `json:"messages"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("path = %v, want /api/chat", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode body: %v", err)
		}

		w.Header().Set("Content-Type", "application/x-ndjson")
		for _, text := range []string{"Hel", "lo!"} {
			fmt.Fprintf(w, "{\"model\":\"llama\",\"message\":{\"role\":\"assistant\",\"content\":%q},\"done\":false}\n", text)
		}
		fmt.Fprint(w, "{\"model\":\"llama\",\"message\":{\"role\":\"assistant\",\"content\":\"\"},\"done\":true}\n")
	}))
	defer srv.Close()

	o, err := services.NewOllama(srv.URL, "llama")
	if err != nil {
		t.Fatal(err)
	}

	got, err := collect(t, o, testRequest())
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}
	if strings.Join(got, "") != "Hello!" {
		t.Errorf("Stream() = %v, want Hello!", got)
	}

	if len(gotBody.Messages) != 3 {
		t.Fatalf("messages = %+v, want system, greeting, and user", gotBody.Messages)
	}
	if gotBody.Messages[0].Role != "system" || gotBody.Messages[1].Role != "assistant" {
		t.Errorf("roles = %v, %v", gotBody.Messages[0].Role, gotBody.Messages[1].Role)
	}
	if len(gotBody.Messages[2].Images) != 1 || gotBody.Messages[2].Images[0] != "aGVsbG8=" {
		t.Errorf("images = %v, want the inline image", gotBody.Messages[2].Images)
	}
}

func TestOllamaStreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"error":"model \"llama\" not found"}`)
	}))
	defer srv.Close()

	o, err := services.NewOllama(srv.URL, "llama")
	if err != nil {
		t.Fatal(err)
	}

	_, err = collect(t, o, testRequest())
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Errorf("Stream() error = %v, want the model error", err)
	}
}
