package otel

import (
	"context"
	"strings"
	"testing"
)

func TestResourceCarriesDeployment(t *testing.T) {
	res, err := Resource(Config{
		ServiceName: "fydaid",
		Environment: "test",
		Deployment: Deployment{
			ChainID:  42,
			Proxy:    "0x0000000000000000000000000000000000000B0B",
			Strategy: "SignFirst",
			Series:   3,
		},
	})
	if err != nil {
		t.Fatalf("resource: %v", err)
	}
	set := res.Set()
	if v, ok := set.Value(ChainIDKey); !ok || v.AsInt64() != 42 {
		t.Fatalf("missing chain id: %v", v)
	}
	if v, ok := set.Value(ProxyKey); !ok || v.AsString() != "0x0000000000000000000000000000000000000b0b" {
		t.Fatalf("proxy not normalised: %v", v)
	}
	if v, ok := set.Value(StrategyKey); !ok || v.AsString() != "SignFirst" {
		t.Fatalf("missing strategy: %v", v)
	}
	if v, ok := set.Value(SeriesKey); !ok || v.AsInt64() != 3 {
		t.Fatalf("missing series count: %v", v)
	}
}

func TestResourceOmitsUnsetDeployment(t *testing.T) {
	res, err := Resource(Config{ServiceName: "fydaictl"})
	if err != nil {
		t.Fatalf("resource: %v", err)
	}
	if _, ok := res.Set().Value(ChainIDKey); ok {
		t.Fatalf("zero chain id should be omitted")
	}
}

func TestInitRequiresServiceName(t *testing.T) {
	if _, err := Init(context.Background(), Config{}); err == nil {
		t.Fatalf("expected error without service name")
	}
}

func TestInitWithoutExportersIsNoop(t *testing.T) {
	shutdown, err := Init(context.Background(), Config{ServiceName: "fydaid"})
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestSamplerRatio(t *testing.T) {
	if d := Sampler(0.25).Description(); !strings.Contains(d, "TraceIDRatioBased{0.25}") {
		t.Fatalf("unexpected sampler %s", d)
	}
	if d := Sampler(2).Description(); !strings.Contains(d, "AlwaysOnSampler") {
		t.Fatalf("out of range ratio should sample everything, got %s", d)
	}
}

func TestParseHeaders(t *testing.T) {
	got := ParseHeaders(" api-key = abc ,broken, =x,team=lending")
	if len(got) != 2 || got["api-key"] != "abc" || got["team"] != "lending" {
		t.Fatalf("unexpected headers %v", got)
	}
}
