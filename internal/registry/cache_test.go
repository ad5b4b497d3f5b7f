package registry

import (
	"sync"
	"testing"
	"time"
)

func TestCache_FreshHit(t *testing.T) {
	c := NewToolCache(30 * time.Second)
	c.Set("acct_widgets_save", &ToolDefinition{ToolName: "acct_widgets_save", Operation: "save"})

	result := c.Get("acct_widgets_save")
	if !result.Hit {
		t.Fatal("expected cache hit")
	}
	if result.NeedsRefresh {
		t.Fatal("expected fresh, got needs refresh")
	}
	if result.Tool.Operation != "save" {
		t.Fatalf("expected save, got %s", result.Tool.Operation)
	}
}

func TestCache_Miss(t *testing.T) {
	c := NewToolCache(30 * time.Second)
	result := c.Get("nonexistent")
	if result.Hit || result.Tool != nil {
		t.Fatal("expected miss")
	}
}

func TestCache_NegativeCache(t *testing.T) {
	c := NewToolCache(30 * time.Second)
	c.Set("unknown_tool", nil)

	result := c.Get("unknown_tool")
	if !result.Hit {
		t.Fatal("expected cache hit for negative cache")
	}
	if result.Tool != nil {
		t.Fatal("expected nil tool for negative cache")
	}
}

func TestCache_StaleHit_OnlyOneRefreshSignal(t *testing.T) {
	c := NewToolCache(1 * time.Millisecond)
	c.Set("acct_widgets_search", &ToolDefinition{ToolName: "acct_widgets_search"})

	time.Sleep(5 * time.Millisecond)

	refreshCount := 0
	for i := 0; i < 10; i++ {
		result := c.Get("acct_widgets_search")
		if !result.Hit || result.Tool == nil {
			t.Fatal("expected stale hit with value")
		}
		if result.NeedsRefresh {
			refreshCount++
		}
	}
	if refreshCount != 1 {
		t.Fatalf("expected exactly 1 refresh signal, got %d", refreshCount)
	}
}

func TestCache_SetAfterStale_ResetsFreshness(t *testing.T) {
	c := NewToolCache(1 * time.Millisecond)
	c.Set("t", &ToolDefinition{ToolName: "t", SchemaHash: "old"})

	time.Sleep(5 * time.Millisecond)
	c.Set("t", &ToolDefinition{ToolName: "t", SchemaHash: "new"})

	result := c.Get("t")
	if !result.Hit || result.NeedsRefresh {
		t.Fatalf("expected fresh hit after re-set, got %+v", result)
	}
	if result.Tool.SchemaHash != "new" {
		t.Fatalf("expected new hash, got %s", result.Tool.SchemaHash)
	}
}

func TestCache_ConcurrentStaleRefresh(t *testing.T) {
	c := NewToolCache(1 * time.Millisecond)
	c.Set("tool", &ToolDefinition{ToolName: "tool"})

	time.Sleep(5 * time.Millisecond)

	var refreshCount int64
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if c.Get("tool").NeedsRefresh {
				mu.Lock()
				refreshCount++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if refreshCount != 1 {
		t.Fatalf("expected exactly 1 refresh across 50 goroutines, got %d", refreshCount)
	}
}

func BenchmarkToolCache_Get_FreshHit(b *testing.B) {
	c := NewToolCache(30 * time.Second)
	c.Set("acct_widgets_retrieve", &ToolDefinition{ToolName: "acct_widgets_retrieve"})

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		c.Get("acct_widgets_retrieve")
	}
}
