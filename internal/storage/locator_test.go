package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

type fakeSigner struct {
	calls  int
	err    error
	signed func(key string, call int) string
}

func (f *fakeSigner) SignURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	if f.signed != nil {
		return f.signed(key, f.calls), nil
	}
	return fmt.Sprintf("https://signed.example/%s?X-Amz-Signature=sig%d", key, f.calls), nil
}

func TestResolvePassThrough(t *testing.T) {
	locator, err := NewLocator(&fakeSigner{}, LocatorConfig{})
	if err != nil {
		t.Fatalf("unexpected error creating locator: %v", err)
	}

	tests := []struct {
		name  string
		value string
	}{
		{name: "无签名参数的绝对 URL", value: "https://cdn.example.com/a.jpg"},
		{name: "file 引用", value: "file:///tmp/a.jpg"},
		{name: "绝对本地路径", value: "/var/cache/a.jpg"},
		{name: "内联数据", value: "data:image/jpeg;base64,aGk="},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := locator.Resolve(context.Background(), tt.value)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.value {
				t.Errorf("expected pass-through, got %q", got)
			}
		})
	}
}

func TestResolveSignsBareKey(t *testing.T) {
	signer := &fakeSigner{}
	locator, err := NewLocator(signer, LocatorConfig{})
	if err != nil {
		t.Fatalf("unexpected error creating locator: %v", err)
	}

	got, err := locator.Resolve(context.Background(), "generated/u1/123.jpg")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(got, "generated/u1/123.jpg") {
		t.Errorf("expected signed url for key, got %q", got)
	}
	if signer.calls != 1 {
		t.Errorf("expected one sign call, got %d", signer.calls)
	}
}

func TestResolveCachesUntilDeadline(t *testing.T) {
	signer := &fakeSigner{}
	locator, err := NewLocator(signer, LocatorConfig{SignTTL: time.Hour, CacheTTL: 55 * time.Minute})
	if err != nil {
		t.Fatalf("unexpected error creating locator: %v", err)
	}

	current := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	locator.now = func() time.Time { return current }

	first, err := locator.Resolve(context.Background(), "generated/u1/a.jpg")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// 截止时间之内命中缓存
	current = current.Add(54 * time.Minute)
	second, err := locator.Resolve(context.Background(), "generated/u1/a.jpg")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if second != first {
		t.Errorf("expected cached url, got %q", second)
	}
	if signer.calls != 1 {
		t.Errorf("expected single sign call, got %d", signer.calls)
	}

	// 过了截止时间必须重新签名，绝不返回过期条目
	current = current.Add(2 * time.Minute)
	third, err := locator.Resolve(context.Background(), "generated/u1/a.jpg")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if third == first {
		t.Error("expected fresh url after cache deadline")
	}
	if signer.calls != 2 {
		t.Errorf("expected second sign call, got %d", signer.calls)
	}
}

func TestResolveReSignsExpiredSignedURL(t *testing.T) {
	signer := &fakeSigner{}
	locator, err := NewLocator(signer, LocatorConfig{})
	if err != nil {
		t.Fatalf("unexpected error creating locator: %v", err)
	}

	stale := "https://bucket.s3.amazonaws.com/generated/u1/a.jpg?X-Amz-Signature=stale"
	got, err := locator.Resolve(context.Background(), stale)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got == stale {
		t.Error("expected stale signed url to be re-resolved")
	}
	if signer.calls != 1 {
		t.Errorf("expected sign call for extracted key, got %d", signer.calls)
	}
	if !strings.Contains(got, "generated/u1/a.jpg") {
		t.Errorf("expected extracted key in fresh url, got %q", got)
	}
}

func TestResolvePublicDomainSkipsSigning(t *testing.T) {
	signer := &fakeSigner{}
	locator, err := NewLocator(signer, LocatorConfig{PublicDomain: "cdn.example.com"})
	if err != nil {
		t.Fatalf("unexpected error creating locator: %v", err)
	}

	got, err := locator.Resolve(context.Background(), "generated/u1/a.jpg")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "https://cdn.example.com/generated/u1/a.jpg" {
		t.Errorf("expected deterministic public url, got %q", got)
	}
	if signer.calls != 0 {
		t.Errorf("expected no sign calls, got %d", signer.calls)
	}
}

func TestResolveSignerFailure(t *testing.T) {
	signer := &fakeSigner{err: errors.New("network down")}
	locator, err := NewLocator(signer, LocatorConfig{})
	if err != nil {
		t.Fatalf("unexpected error creating locator: %v", err)
	}

	if _, err := locator.Resolve(context.Background(), "generated/u1/a.jpg"); err == nil {
		t.Fatal("expected error from failed signing")
	}
}

func TestResolveWithoutSignerOrDomain(t *testing.T) {
	locator, err := NewLocator(nil, LocatorConfig{})
	if err != nil {
		t.Fatalf("unexpected error creating locator: %v", err)
	}

	_, err = locator.Resolve(context.Background(), "generated/u1/a.jpg")
	if !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestExtractObjectKey(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		expected string
	}{
		{name: "直接 key", path: "/generated/u1/a.jpg", expected: "generated/u1/a.jpg"},
		{name: "path-style 带桶前缀", path: "/my-bucket/generated/u1/a.jpg", expected: "generated/u1/a.jpg"},
		{name: "无 generated 段时整个 path 作为 key", path: "/other/a.jpg", expected: "other/a.jpg"},
		{name: "空 path", path: "/", expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := extractObjectKey(tt.path); got != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, got)
			}
		})
	}
}
