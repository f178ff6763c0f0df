package calibrate

import (
	"errors"
	"math"
	"path/filepath"
	"testing"
	"time"
)

func TestFit_ExpandsCompressedPredictions(t *testing.T) {
	// Raw predictions cluster in [5.0, 6.5] while the truth spans
	// [4.0, 9.0]: the fitted slope must expand variance, i.e. exceed 1.
	raw := []float64{5.0, 5.2, 5.4, 5.5, 5.7, 5.9, 6.0, 6.1, 6.3, 6.5}
	truth := []float64{4.0, 4.5, 5.0, 5.5, 6.0, 6.5, 7.0, 7.5, 8.5, 9.0}

	m, err := Fit(raw, truth, DefaultFitOptions())
	if err != nil {
		t.Fatalf("Fit failed: %v", err)
	}
	if m.Slope <= 1.0 {
		t.Errorf("slope = %v, want > 1 (variance expansion)", m.Slope)
	}
	if m.TrainingSamples != len(raw) {
		t.Errorf("training samples = %d, want %d", m.TrainingSamples, len(raw))
	}
	if m.Tolerance != 0.5 {
		t.Errorf("tolerance = %v, want 0.5", m.Tolerance)
	}
	if m.Version == "" {
		t.Error("fitted model must carry a version")
	}
}

func TestFit_BeatsIdentityOnShiftedData(t *testing.T) {
	// Truth is raw + 1.0 exactly; the identity map puts nothing in
	// tolerance, while the right intercept puts everything in.
	raw := []float64{4.0, 5.0, 5.5, 6.0, 6.5, 7.0, 7.5, 8.0}
	truth := make([]float64, len(raw))
	for i, r := range raw {
		truth[i] = r + 1.0
	}

	opts := DefaultFitOptions()
	m, err := Fit(raw, truth, opts)
	if err != nil {
		t.Fatalf("Fit failed: %v", err)
	}

	identity := fitObjective(raw, truth, 1.0, 0.0, opts)
	if m.Objective <= identity {
		t.Errorf("fitted objective %v does not beat identity %v", m.Objective, identity)
	}
	// Every calibrated prediction should now land within tolerance.
	for i, r := range raw {
		if math.Abs(m.Apply(r)-truth[i]) > opts.Tolerance+1e-9 {
			t.Errorf("Apply(%v) = %v, more than %v from truth %v", r, m.Apply(r), opts.Tolerance, truth[i])
		}
	}
}

func TestFit_InputValidation(t *testing.T) {
	if _, err := Fit([]float64{6.0}, []float64{6.0}, DefaultFitOptions()); err == nil {
		t.Error("expected error for too few samples")
	}
	if _, err := Fit([]float64{6.0, 7.0}, []float64{6.0}, DefaultFitOptions()); err == nil {
		t.Error("expected error for length mismatch")
	}
}

func TestModel_ApplyIsMonotone(t *testing.T) {
	m := &Model{Slope: 1.4, Intercept: -2.1}

	prev := math.Inf(-1)
	for x := 0.0; x <= 9.0; x += 0.25 {
		y := m.Apply(x)
		if y < prev {
			t.Fatalf("Apply not monotone at %v: %v < %v", x, y, prev)
		}
		prev = y
	}
}

func TestModel_ApplyClampsToBandRange(t *testing.T) {
	m := &Model{Slope: 2.0, Intercept: 0.0}

	if got := m.Apply(8.0); got != 9.0 {
		t.Errorf("Apply(8.0) = %v, want clamp to 9.0", got)
	}
	m = &Model{Slope: 1.0, Intercept: -5.0}
	if got := m.Apply(2.0); got != 0.0 {
		t.Errorf("Apply(2.0) = %v, want clamp to 0.0", got)
	}
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	m := &Model{
		Version:         "qwk-affine-test1",
		Slope:           1.3,
		Intercept:       -1.7,
		Tolerance:       0.5,
		AgreementWeight: 0.8,
		CoverageWeight:  0.2,
		TrainingSamples: 120,
		Objective:       0.74,
		FittedAt:        time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}

	path, err := Save(m, dir)
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if *loaded != *m {
		t.Errorf("round trip mismatch: %+v != %+v", loaded, m)
	}
}

func TestSave_WriteOnce(t *testing.T) {
	dir := t.TempDir()
	m := &Model{Version: "qwk-affine-test2", FittedAt: time.Now().UTC()}

	if _, err := Save(m, dir); err != nil {
		t.Fatalf("first save failed: %v", err)
	}
	if _, err := Save(m, dir); err == nil {
		t.Fatal("second save of the same version must fail")
	}
}

func TestLoadLatest(t *testing.T) {
	dir := t.TempDir()

	older := &Model{Version: "qwk-affine-old", FittedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	newer := &Model{Version: "qwk-affine-new", FittedAt: time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)}
	if _, err := Save(older, dir); err != nil {
		t.Fatal(err)
	}
	if _, err := Save(newer, dir); err != nil {
		t.Fatal(err)
	}

	m, err := LoadLatest(dir)
	if err != nil {
		t.Fatalf("LoadLatest failed: %v", err)
	}
	if m.Version != "qwk-affine-new" {
		t.Errorf("loaded version %s, want qwk-affine-new", m.Version)
	}
}

func TestLoadLatest_Unavailable(t *testing.T) {
	if _, err := LoadLatest(""); !errors.Is(err, ErrUnavailable) {
		t.Errorf("empty dir: expected ErrUnavailable, got %v", err)
	}
	if _, err := LoadLatest(filepath.Join(t.TempDir(), "missing")); !errors.Is(err, ErrUnavailable) {
		t.Errorf("missing dir: expected ErrUnavailable, got %v", err)
	}
	if _, err := LoadLatest(t.TempDir()); !errors.Is(err, ErrUnavailable) {
		t.Errorf("empty models dir: expected ErrUnavailable, got %v", err)
	}
}
