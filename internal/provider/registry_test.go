package provider

import (
	"testing"

	"github.com/kozo2/Hatchling/internal/config"
)

func testSettings() *config.Settings {
	s := config.NewSettings()
	s.LLM.Provider = OllamaID
	s.LLM.Model = "llama3.1"
	return s
}

func TestRegistry_DefaultBackends(t *testing.T) {
	r := NewDefaultRegistry(testSettings())
	defer r.Close()

	ids := r.IDs()
	if len(ids) != 2 || ids[0] != OllamaID || ids[1] != OpenAIID {
		t.Errorf("Unexpected backend ids: %v", ids)
	}
}

func TestRegistry_GetCachesInstance(t *testing.T) {
	r := NewDefaultRegistry(testSettings())
	defer r.Close()

	first, err := r.Get(OllamaID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	second, err := r.Get(OllamaID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if first != second {
		t.Error("Expected the same cached instance")
	}
}

func TestRegistry_GetUnknown(t *testing.T) {
	r := NewDefaultRegistry(testSettings())
	defer r.Close()

	if _, err := r.Get("anthropic"); err == nil {
		t.Error("Expected error for unregistered provider")
	}
}

func TestRegistry_DuplicateFactory(t *testing.T) {
	r := NewRegistry(testSettings())

	if err := r.RegisterFactory("x", NewOllama); err != nil {
		t.Fatalf("RegisterFactory: %v", err)
	}
	if err := r.RegisterFactory("x", NewOllama); err == nil {
		t.Error("Expected error on duplicate registration")
	}
}

func TestRegistry_Current(t *testing.T) {
	settings := testSettings()
	settings.LLM.Provider = OpenAIID
	r := NewDefaultRegistry(settings)
	defer r.Close()

	p, err := r.Current()
	if err != nil {
		t.Fatalf("Current: %v", err)
	}
	if p.ID() != OpenAIID {
		t.Errorf("Expected openai, got %s", p.ID())
	}
}

func TestRegistry_Reset(t *testing.T) {
	r := NewDefaultRegistry(testSettings())
	defer r.Close()

	first, err := r.Get(OllamaID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}

	r.Reset(OllamaID)

	second, err := r.Get(OllamaID)
	if err != nil {
		t.Fatalf("Get after reset: %v", err)
	}
	if first == second {
		t.Error("Expected a fresh instance after reset")
	}
}
