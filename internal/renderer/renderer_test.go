package renderer

import (
	"context"
	"testing"
)

func TestParams_Validate(t *testing.T) {
	valid := Params{Width: 300, Height: 400, Zoom: 1, ChainLength: 4}

	tests := []struct {
		name    string
		mutate  func(*Params)
		wantErr bool
	}{
		{"valid", func(*Params) {}, false},
		{"zero width", func(p *Params) { p.Width = 0 }, true},
		{"negative height", func(p *Params) { p.Height = -1 }, true},
		{"zero zoom", func(p *Params) { p.Zoom = 0 }, true},
		{"negative chain", func(p *Params) { p.ChainLength = -2 }, true},
		{"no chain", func(p *Params) { p.ChainLength = 0 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := valid
			tt.mutate(&p)
			if err := p.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestFactoryFunc(t *testing.T) {
	var got Params
	f := FactoryFunc(func(_ context.Context, p Params) (Session, error) {
		got = p
		return nil, nil
	})
	if _, err := f.Open(context.Background(), Params{Style: "round"}); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if got.Style != "round" {
		t.Errorf("params not forwarded: %+v", got)
	}
}
