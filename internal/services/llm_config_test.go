package services

import (
	"errors"
	"testing"

	"github.com/huangang/codemender/internal/testutil"
)

func TestLLMConfigService_CreateDefaults(t *testing.T) {
	svc := NewLLMConfigService(testutil.NewDB(t))

	cfg, err := svc.Create(&CreateLLMConfigRequest{Name: " primary ", APIKey: "sk-1234567890abcd", Model: "gpt-4o", IsActive: true})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if cfg.Name != "primary" {
		t.Errorf("Name = %q, want trimmed", cfg.Name)
	}
	if cfg.Provider != "openai" {
		t.Errorf("Provider = %q, want openai", cfg.Provider)
	}
	if cfg.MaxTokens != 4096 {
		t.Errorf("MaxTokens = %d, want 4096", cfg.MaxTokens)
	}
	if cfg.APIKeyMask != "sk-1****abcd" {
		t.Errorf("APIKeyMask = %q", cfg.APIKeyMask)
	}
}

func TestLLMConfigService_APIKeyRequirement(t *testing.T) {
	svc := NewLLMConfigService(testutil.NewDB(t))

	if _, err := svc.Create(&CreateLLMConfigRequest{Name: "claude", Provider: "anthropic", Model: "claude"}); err == nil {
		t.Error("expected error for anthropic without key")
	}
	if _, err := svc.Create(&CreateLLMConfigRequest{Name: "local", Provider: "ollama", Model: "llama3"}); err != nil {
		t.Errorf("ollama without key: %v", err)
	}
}

func TestLLMConfigService_SingleDefault(t *testing.T) {
	svc := NewLLMConfigService(testutil.NewDB(t))

	a, err := svc.Create(&CreateLLMConfigRequest{Name: "a", APIKey: "k", Model: "m", IsDefault: true, IsActive: true})
	if err != nil {
		t.Fatal(err)
	}
	b, err := svc.Create(&CreateLLMConfigRequest{Name: "b", APIKey: "k", Model: "m", IsDefault: true, IsActive: true})
	if err != nil {
		t.Fatal(err)
	}

	got, _ := svc.GetByID(a.ID)
	if got.IsDefault {
		t.Error("first config should no longer be default")
	}

	yes := true
	if _, err := svc.Update(a.ID, &UpdateLLMConfigRequest{IsDefault: &yes}); err != nil {
		t.Fatal(err)
	}
	got, _ = svc.GetByID(b.ID)
	if got.IsDefault {
		t.Error("second config should no longer be default")
	}

	active, err := svc.GetActive()
	if err != nil {
		t.Fatal(err)
	}
	if len(active) != 2 || active[0].ID != a.ID {
		t.Errorf("GetActive order = %+v", active)
	}
}

func TestLLMConfigService_ListAndDelete(t *testing.T) {
	svc := NewLLMConfigService(testutil.NewDB(t))
	for i, name := range []string{"gpt", "claude", "gemini"} {
		p := i
		if _, err := svc.Create(&CreateLLMConfigRequest{Name: name, APIKey: "key", Model: name + "-model", Priority: 3 - p, IsActive: true}); err != nil {
			t.Fatal(err)
		}
	}

	resp, err := svc.List(&LLMConfigListRequest{PageSize: 2})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Total != 3 || len(resp.Items) != 2 || resp.Page != 1 {
		t.Fatalf("List = total %d, items %d, page %d", resp.Total, len(resp.Items), resp.Page)
	}
	if resp.Items[0].Name != "gemini" {
		t.Errorf("lowest priority first, got %q", resp.Items[0].Name)
	}

	resp, _ = svc.List(&LLMConfigListRequest{Name: "claude"})
	if resp.Total != 1 {
		t.Errorf("name filter total = %d", resp.Total)
	}

	if err := svc.Delete(resp.Items[0].ID); err != nil {
		t.Fatal(err)
	}
	if err := svc.Delete(resp.Items[0].ID); !errors.Is(err, ErrLLMConfigNotFound) {
		t.Errorf("second delete err = %v", err)
	}
	if _, err := svc.GetByID(resp.Items[0].ID); !errors.Is(err, ErrLLMConfigNotFound) {
		t.Errorf("GetByID err = %v", err)
	}
}
