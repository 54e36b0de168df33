package goSession

import (
	"context"
	"testing"
	"time"
)

func BenchmarkIsAuthenticated(b *testing.B) {
	f := newSessionFixture(b, testConfig())
	f.login(b, time.Hour, "ROLE_USER")
	ctx := context.Background()
	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		if !f.s.IsAuthenticated(ctx) {
			b.Fatal("expected authenticated")
		}
	}
}

func BenchmarkGateCheckParallel(b *testing.B) {
	f := newSessionFixture(b, testConfig())
	f.login(b, time.Hour, "ROLE_MANAGER")
	gate := f.s.Gate()
	route := Route{Path: "/banks", RequiredPermission: "bank-list:edit"}
	ctx := context.Background()
	b.ReportAllocs()
	b.ResetTimer()

	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			if d := gate.Check(ctx, route); !d.Allowed {
				b.Errorf("denied: %s", d.Reason)
				return
			}
		}
	})
}

func BenchmarkRefreshParallel(b *testing.B) {
	f := newSessionFixture(b, testConfig())
	token := f.login(b, time.Hour)
	f.api.mu.Lock()
	f.api.refreshToken = token
	f.api.mu.Unlock()
	ctx := context.Background()
	b.ReportAllocs()
	b.ResetTimer()

	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			if _, err := f.s.Refresh(ctx); err != nil {
				b.Errorf("refresh: %v", err)
				return
			}
		}
	})
}
