package app

import (
	"context"
	"errors"

	"github.com/fairyhunter13/ai-petition-evaluator/internal/adapter/httpserver"
)

// Pinger is anything that can report its own reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

// Ping calls f.
func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// Dependencies are the backends /readyz probes. DB is mandatory; the others
// are checked only when configured.
type Dependencies struct {
	DB      Pinger
	Redis   Pinger
	Tika    Pinger
	Storage Pinger
	Broker  Pinger
}

var errNotConfigured = errors.New("not configured")

// BuildReadinessChecks returns one check per configured dependency.
func BuildReadinessChecks(d Dependencies) []httpserver.ReadinessCheck {
	checks := []httpserver.ReadinessCheck{{Name: "db", Check: probe(d.DB)}}
	optional := []struct {
		name string
		p    Pinger
	}{
		{"redis", d.Redis},
		{"tika", d.Tika},
		{"s3", d.Storage},
		{"redpanda", d.Broker},
	}
	for _, o := range optional {
		if o.p != nil {
			checks = append(checks, httpserver.ReadinessCheck{Name: o.name, Check: probe(o.p)})
		}
	}
	return checks
}

func probe(p Pinger) func(context.Context) error {
	return func(ctx context.Context) error {
		if p == nil {
			return errNotConfigured
		}
		return p.Ping(ctx)
	}
}
