package source

import (
	"context"

	"github.com/pueblokc/fail2ban/internal/demo"
	"github.com/pueblokc/fail2ban/internal/status"
)

// demoSource serves generated data. Every query produces a fresh dataset;
// ban and unban succeed without touching anything.
type demoSource struct {
	gen *demo.Generator
}

// NewDemo returns a Source backed by gen.
func NewDemo(gen *demo.Generator) Source {
	return &demoSource{gen: gen}
}

func (s *demoSource) Demo() bool { return true }

func (s *demoSource) Overall(ctx context.Context) (*Overall, error) {
	ds := s.gen.Dataset()
	return &Overall{
		Jails:          ds.Jails,
		Timeline:       ds.Timeline,
		TopIPs:         ds.TopIPs,
		TotalBannedNow: ds.TotalBannedNow,
		TotalJails:     ds.TotalJails,
		Demo:           true,
	}, nil
}

func (s *demoSource) Jail(ctx context.Context, name string) (*status.Jail, error) {
	ds := s.gen.Dataset()
	j, ok := ds.Jails[name]
	if !ok {
		return nil, ErrJailNotFound
	}
	return &j, nil
}

func (s *demoSource) Ban(ctx context.Context, jail, ip string) error   { return nil }
func (s *demoSource) Unban(ctx context.Context, jail, ip string) error { return nil }
