package pattern

import (
	"sync"
	"testing"
)

func TestCompile(t *testing.T) {
	tests := []struct {
		pattern string
		name    string
		want    bool
	}{
		{"filesystem__*", "filesystem__read", true},
		{"filesystem__*", "FILESYSTEM__READ", true},
		{"filesystem__*", "myfilesystem__read", false},
		{"*__read", "files__read", true},
		{"*__read", "files__read_all", false},
		{"git?ub__*", "github__create_issue", true},
		{"git?ub__*", "gitub__create_issue", false},
		{"s3__*", "s3__put", true},
		{"a.b", "a.b", true},
		{"a.b", "axb", false},
		{"(x)+[y]", "(x)+[y]", true},
		{"*", "", true},
		{"?", "", false},
	}

	for _, tt := range tests {
		m, err := Compile(tt.pattern)
		if err != nil {
			t.Fatalf("Compile(%q) failed: %v", tt.pattern, err)
		}
		if got := m.Match(tt.name); got != tt.want {
			t.Errorf("%q.Match(%q) = %v, want %v", tt.pattern, tt.name, got, tt.want)
		}
	}
}

func TestCompile_Empty(t *testing.T) {
	if _, err := Compile(""); err != ErrEmptyPattern {
		t.Errorf("expected ErrEmptyPattern, got %v", err)
	}
}

func TestCache_Memoizes(t *testing.T) {
	c := NewCache(nil)

	first, ok := c.Get("web__*")
	if !ok {
		t.Fatal("expected pattern to compile")
	}
	second, _ := c.Get("web__*")
	if first != second {
		t.Error("expected the same compiled matcher on second lookup")
	}
	if c.Size() != 1 {
		t.Errorf("expected 1 cached matcher, got %d", c.Size())
	}
}

func TestCache_InvalidNeverMatches(t *testing.T) {
	c := NewCache(nil)

	if c.Matches("anything", "") {
		t.Error("invalid pattern must not match")
	}
	if c.Matches("anything", "") {
		t.Error("invalid pattern must not match on repeat lookup")
	}
	if c.Size() != 0 {
		t.Errorf("invalid pattern should not be cached as compiled, size=%d", c.Size())
	}
}

func TestCache_Concurrent(t *testing.T) {
	c := NewCache(nil)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if !c.Matches("docker__ps", "docker__*") {
				t.Error("expected match")
			}
		}()
	}
	wg.Wait()

	if c.Size() != 1 {
		t.Errorf("expected 1 cached matcher, got %d", c.Size())
	}
}
