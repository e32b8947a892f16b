package providers

import (
	"testing"

	"github.com/MetaHackathon/DataEngineX/internal/config"
)

func managerFor(t *testing.T, llm, embed string) *Manager {
	t.Helper()
	m, err := NewManager(config.Config{LLMProviders: llm, EmbedProviders: embed, EmbedDim: 8})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	return m
}

func TestNewManagerDefaultsToMock(t *testing.T) {
	m := managerFor(t, "", "")
	if m.LLMCount() != 1 || m.EmbedCount() != 1 {
		t.Fatalf("expected mock fallback, got llm=%d embed=%d", m.LLMCount(), m.EmbedCount())
	}
	if p, ref := m.LLMProviderByIndex(0); p == nil || ref.Name != "mock" {
		t.Fatalf("fallback llm provider missing: %+v", ref)
	}
}

func TestNewManagerRejectsUnknownProvider(t *testing.T) {
	if _, err := NewManager(config.Config{LLMProviders: "cohere", EmbedDim: 8}); err == nil {
		t.Fatal("expected error for unsupported provider name")
	}
}

func TestPreferredOrderPutsMockLast(t *testing.T) {
	m := managerFor(t, "mock|groq|openai:k1", "mock|ollama")
	llm := m.PreferredLLMOrder()
	if len(llm) != 3 || llm[0] != 1 || llm[1] != 2 || llm[2] != 0 {
		t.Fatalf("llm order: %#v", llm)
	}
	embed := m.PreferredEmbedOrder()
	if len(embed) != 2 || embed[0] != 1 || embed[1] != 0 {
		t.Fatalf("embed order: %#v", embed)
	}
}

func TestFindLLMProviderByName(t *testing.T) {
	m := managerFor(t, "mock|groq:fast", "mock")
	p, ref, ok := m.FindLLMProviderByName("GROQ")
	if !ok || p == nil || ref.Name != "groq" {
		t.Fatalf("lookup failed: ok=%v ref=%+v", ok, ref)
	}
	if _, _, ok := m.FindLLMProviderByName("openai"); ok {
		t.Fatal("expected miss for unconfigured provider")
	}
}

func TestProviderByIndexClamps(t *testing.T) {
	m := managerFor(t, "mock", "mock|ollama")
	_, ref := m.EmbedProviderByIndex(99)
	if ref.Name != "mock" {
		t.Fatalf("out-of-range index should clamp to first, got %+v", ref)
	}
	_, ref = m.EmbedProviderByIndex(1)
	if ref.Name != "ollama" {
		t.Fatalf("index 1: got %+v", ref)
	}
}
