package cache

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestMemoryCacheBasics(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()

	t.Run("set and get", func(t *testing.T) {
		if err := c.Set(ctx, "org-1", "rules:family", []byte("payload"), time.Minute); err != nil {
			t.Fatalf("Set: %v", err)
		}
		got, err := c.Get(ctx, "org-1", "rules:family")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if string(got) != "payload" {
			t.Errorf("got %q, want payload", got)
		}
	})

	t.Run("miss returns nil nil", func(t *testing.T) {
		got, err := c.Get(ctx, "org-1", "absent")
		if err != nil || got != nil {
			t.Errorf("got %v, %v; want nil, nil", got, err)
		}
	})

	t.Run("org isolation", func(t *testing.T) {
		got, err := c.Get(ctx, "org-2", "rules:family")
		if err != nil || got != nil {
			t.Errorf("expected miss for other org, got %v, %v", got, err)
		}
	})

	t.Run("requires org", func(t *testing.T) {
		if _, err := c.Get(ctx, "", "k"); err == nil {
			t.Error("expected error for empty orgID")
		}
		if err := c.Set(ctx, "", "k", nil, time.Minute); err == nil {
			t.Error("expected error for empty orgID")
		}
	})
}

func TestMemoryCacheExpiry(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()

	if err := c.Set(ctx, "org-1", "short", []byte("v"), 10*time.Millisecond); err != nil {
		t.Fatalf("Set: %v", err)
	}

	time.Sleep(30 * time.Millisecond)

	got, err := c.Get(ctx, "org-1", "short")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != nil {
		t.Error("expected expired entry to miss")
	}
}

func TestMemoryCacheInvalidation(t *testing.T) {
	ctx := context.Background()

	seed := func(t *testing.T) *MemoryCache {
		t.Helper()
		c := NewMemoryCache()
		entries := map[string][2]string{
			"a": {"org-1", "rules:FAM.A"},
			"b": {"org-1", "rules:FAM.B"},
			"c": {"org-2", "rules:FAM.A"},
		}
		for _, e := range entries {
			if err := c.Set(ctx, e[0], e[1], []byte("v"), time.Minute); err != nil {
				t.Fatalf("Set: %v", err)
			}
		}
		return c
	}

	t.Run("delete single key", func(t *testing.T) {
		c := seed(t)
		if err := c.Delete(ctx, "org-1", "rules:FAM.A"); err != nil {
			t.Fatalf("Delete: %v", err)
		}
		if got, _ := c.Get(ctx, "org-1", "rules:FAM.A"); got != nil {
			t.Error("deleted key still present")
		}
		if got, _ := c.Get(ctx, "org-1", "rules:FAM.B"); got == nil {
			t.Error("unrelated key was deleted")
		}
	})

	t.Run("delete prefix clears org only", func(t *testing.T) {
		c := seed(t)
		if err := c.DeletePrefix(ctx, "org-1", ""); err != nil {
			t.Fatalf("DeletePrefix: %v", err)
		}
		if got, _ := c.Get(ctx, "org-1", "rules:FAM.A"); got != nil {
			t.Error("org-1 entry survived prefix delete")
		}
		if got, _ := c.Get(ctx, "org-2", "rules:FAM.A"); got == nil {
			t.Error("org-2 entry was deleted")
		}
	})

	t.Run("flush clears everything", func(t *testing.T) {
		c := seed(t)
		if err := c.Flush(ctx); err != nil {
			t.Fatalf("Flush: %v", err)
		}
		if c.Size() != 0 {
			t.Errorf("size = %d after flush, want 0", c.Size())
		}
	})
}

func TestMemoryCacheConcurrency(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			key := "rules:FAM." + string(rune('A'+n))
			for j := 0; j < 200; j++ {
				_ = c.Set(ctx, "org-1", key, []byte("v"), time.Minute)
				_, _ = c.Get(ctx, "org-1", key)
				if j%50 == 0 {
					_ = c.Delete(ctx, "org-1", key)
				}
			}
		}(i)
	}
	wg.Wait()
}
