package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func TestOpenAIClientComplete(t *testing.T) {
	var gotModel string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req struct {
			Model string `json:"model"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		gotModel = req.Model

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"{\"valid\":[],\"invalid\":[]}"},"finish_reason":"stop"}]}`))
	}))
	defer server.Close()

	config := NewDefaultConfig()
	config.APIKey = "test-key"
	config.BaseURL = server.URL

	client, err := NewClient(config)
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	got, err := client.Complete(context.Background(), "prompt")
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if got != `{"valid":[],"invalid":[]}` {
		t.Errorf("Complete() = %q", got)
	}
	if gotModel != "gpt-4" {
		t.Errorf("model = %q, want gpt-4", gotModel)
	}
}

func TestOpenAIClientNoChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"1","object":"chat.completion","choices":[]}`))
	}))
	defer server.Close()

	config := NewDefaultConfig()
	config.APIKey = "test-key"
	config.BaseURL = server.URL

	if _, err := NewOpenAIClient(config).Complete(context.Background(), "prompt"); err == nil {
		t.Fatal("expected error for empty choices")
	}
}

func TestNewClientUnknownProvider(t *testing.T) {
	config := NewDefaultConfig()
	config.Provider = "nope"
	if _, err := NewClient(config); err == nil {
		t.Fatal("expected error for unsupported provider")
	}
}

func TestLoadConfig(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")

	tests := []struct {
		name    string
		content string
		wantErr bool
	}{
		{
			name:    "valid",
			content: `{"provider": "openai", "api_key": "k", "model": "gpt-4o"}`,
		},
		{
			name:    "missing key",
			content: `{"provider": "openai", "model": "gpt-4o"}`,
			wantErr: true,
		},
		{
			name:    "malformed",
			content: `{`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "llm.json")
			if err := os.WriteFile(path, []byte(tt.content), 0644); err != nil {
				t.Fatal(err)
			}

			config, err := LoadConfig(path)
			if (err != nil) != tt.wantErr {
				t.Fatalf("LoadConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && config.MaxTokens != 2000 {
				t.Errorf("defaults not applied: MaxTokens = %d", config.MaxTokens)
			}
		})
	}
}

func TestLoadConfigEnvOverride(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "from-env")

	path := filepath.Join(t.TempDir(), "llm.json")
	if err := os.WriteFile(path, []byte(`{"provider": "openai", "model": "gpt-4o"}`), 0644); err != nil {
		t.Fatal(err)
	}

	config, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if config.APIKey != "from-env" {
		t.Errorf("APIKey = %q, want from-env", config.APIKey)
	}
}
