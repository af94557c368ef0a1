package cycle

import (
	"context"
	"errors"
	"testing"

	"github.com/andesalud/hiv-auth/internal/domain/claims"
)

func TestResolveSubstitutable(t *testing.T) {
	table := &fakeTable{rules: map[string]*claims.SubstitutionRule{
		"18001": {Troquel: "18001", Sustituye: true, CodigoSustituible: "23523"},
	}}

	r := NewResolver(table, nil)

	outcome, err := r.Resolve(context.Background(), "18001")
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if !outcome.Sustituible {
		t.Error("expected es_sustituible true")
	}
	if outcome.Sustituto != "23523" {
		t.Errorf("expected sustituto 23523, got %q", outcome.Sustituto)
	}
	if outcome.Mensaje != "El troquel 18001 puede sustituirse por 23523" {
		t.Errorf("unexpected mensaje: %q", outcome.Mensaje)
	}
}

func TestResolveNotSubstitutable(t *testing.T) {
	table := &fakeTable{rules: map[string]*claims.SubstitutionRule{
		"45282": {Troquel: "45282", Sustituye: false},
	}}

	r := NewResolver(table, nil)

	outcome, err := r.Resolve(context.Background(), "45282")
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if outcome.Sustituible {
		t.Error("expected es_sustituible false")
	}
	if outcome.Sustituto != "" {
		t.Errorf("expected empty sustituto, got %q", outcome.Sustituto)
	}
	if outcome.Mensaje != "El troquel 45282 no es sustituible" {
		t.Errorf("unexpected mensaje: %q", outcome.Mensaje)
	}
}

func TestResolveUnknownTroquel(t *testing.T) {
	r := NewResolver(&fakeTable{}, nil)

	_, err := r.Resolve(context.Background(), "99999")
	if !errors.Is(err, claims.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
