package main

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

// TestResultCacheHitAndMiss tests basic cache storage and retrieval
func TestResultCacheHitAndMiss(t *testing.T) {
	cache := NewResultCache(time.Minute)
	result := SampleResult()

	question := result.Request.Question

	if _, ok := cache.Get(question, ModeFull); ok {
		t.Error("Empty cache should miss")
	}

	cache.Set(question, ModeFull, result)

	cached, ok := cache.Get(question, ModeFull)
	if !ok {
		t.Fatal("Expected cache hit")
	}
	if cached != result {
		t.Error("Cache should return the stored result")
	}

	if _, ok := cache.Get("A different question entirely?", ModeFull); ok {
		t.Error("Unknown question should miss")
	}
}

// TestResultCacheModeSeparation tests that modes cache independently
func TestResultCacheModeSeparation(t *testing.T) {
	cache := NewResultCache(time.Minute)

	fullResult := SampleResult()
	quickResult := SampleResult()
	quickResult.ID = "quick-result-id"

	question := fullResult.Request.Question
	cache.Set(question, ModeFull, fullResult)
	cache.Set(question, ModeQuick, quickResult)

	if cached, ok := cache.Get(question, ModeFull); !ok || cached.ID != fullResult.ID {
		t.Error("Full-mode entry should be independent")
	}
	if cached, ok := cache.Get(question, ModeQuick); !ok || cached.ID != "quick-result-id" {
		t.Error("Quick-mode entry should be independent")
	}
	if cache.Size() != 2 {
		t.Errorf("Size = %d, want 2", cache.Size())
	}
}

// TestResultCacheExpiry tests TTL expiration
func TestResultCacheExpiry(t *testing.T) {
	cache := NewResultCache(50 * time.Millisecond)
	result := SampleResult()
	question := result.Request.Question

	cache.Set(question, ModeFull, result)

	if _, ok := cache.Get(question, ModeFull); !ok {
		t.Fatal("Fresh entry should hit")
	}

	time.Sleep(100 * time.Millisecond)

	if _, ok := cache.Get(question, ModeFull); ok {
		t.Error("Expired entry should miss")
	}
}

// TestResultCacheSetPrunesExpired tests that storing prunes stale entries
func TestResultCacheSetPrunesExpired(t *testing.T) {
	cache := NewResultCache(50 * time.Millisecond)
	result := SampleResult()

	cache.Set("The first question asked here?", ModeFull, result)
	time.Sleep(100 * time.Millisecond)
	cache.Set("The second question asked here?", ModeFull, result)

	if cache.Size() != 1 {
		t.Errorf("Size = %d, want 1 after pruning", cache.Size())
	}
}

// TestResultCacheClear tests clearing the cache
func TestResultCacheClear(t *testing.T) {
	cache := NewResultCache(time.Minute)
	result := SampleResult()

	cache.Set("Some question worth caching here?", ModeFull, result)
	cache.Set("Some question worth caching here?", ModeQuick, result)

	cache.Clear()

	if cache.Size() != 0 {
		t.Errorf("Size = %d, want 0 after clear", cache.Size())
	}
	if _, ok := cache.Get("Some question worth caching here?", ModeFull); ok {
		t.Error("Cleared cache should miss")
	}
}

// TestResultCacheConcurrentAccess exercises the cache from many goroutines
func TestResultCacheConcurrentAccess(t *testing.T) {
	cache := NewResultCache(time.Minute)
	result := SampleResult()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			question := fmt.Sprintf("Concurrent question number %d?", n)
			cache.Set(question, ModeFull, result)
			if _, ok := cache.Get(question, ModeFull); !ok {
				t.Errorf("Entry %d should hit immediately after Set", n)
			}
		}(i)
	}
	wg.Wait()

	if cache.Size() != 16 {
		t.Errorf("Size = %d, want 16", cache.Size())
	}
}
