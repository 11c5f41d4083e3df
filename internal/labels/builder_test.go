package labels

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/mrsinham/ddsmlabel/internal/geometry"
	"github.com/mrsinham/ddsmlabel/internal/identity"
	"github.com/mrsinham/ddsmlabel/internal/index"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeExtractor answers from a mask path -> rects map. Unknown paths fail
// to decode.
type fakeExtractor struct {
	rects map[string][]geometry.Rect
	calls atomic.Int64
}

func (f *fakeExtractor) Extract(path string) ([]geometry.Rect, error) {
	f.calls.Add(1)
	rects, ok := f.rects[path]
	if !ok {
		return nil, fmt.Errorf("%w: %s", geometry.ErrDecodeFailure, path)
	}
	return rects, nil
}

func record(patient, image, mask, pathology string) index.Record {
	return index.Record{
		LesionType: identity.Mass,
		Split:      identity.Training,
		PatientID:  patient,
		Laterality: identity.Left,
		View:       identity.CC,
		Pathology:  pathology,
		ImagePath:  image,
		MaskPath:   mask,
	}
}

func TestBuilder_Build(t *testing.T) {
	ext := &fakeExtractor{rects: map[string][]geometry.Rect{
		"p1/mask.dcm": {{X: 1, Y: 2, W: 30, H: 40}},
		"p2/mask.dcm": {},
	}}
	records := []index.Record{
		record("P_00001", "p1/image.dcm", "p1/mask.dcm", "MALIGNANT"),
		record("P_00002", "p2/image.dcm", "p2/mask.dcm", "BENIGN"),
		record("P_00003", "p3/image.dcm", "", "BENIGN"),
		record("P_00004", "", "p4/mask.dcm", "BENIGN"),
	}

	res, err := NewBuilder(ext, nil, Options{Workers: 2}).Build(context.Background(), records)
	require.NoError(t, err)

	assert.Equal(t, Labels{
		"p1/image.dcm": {BoundingRects: []geometry.Rect{{X: 1, Y: 2, W: 30, H: 40}}, Pathology: "MALIGNANT"},
		"p2/image.dcm": {BoundingRects: []geometry.Rect{}, Pathology: "BENIGN"},
	}, res.Labels)
	assert.Equal(t, 2, res.Skipped)
	assert.Empty(t, res.Failures)
	assert.EqualValues(t, 2, ext.calls.Load(), "incomplete records are never extracted")
}

func TestBuilder_DecodeFailuresAreReported(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	ext := &fakeExtractor{rects: map[string][]geometry.Rect{
		"ok/mask.dcm": {{X: 0, Y: 0, W: 5, H: 5}},
	}}
	records := []index.Record{
		record("P_00001", "bad/image.dcm", "bad/mask.dcm", "BENIGN"),
		record("P_00002", "ok/image.dcm", "ok/mask.dcm", "MALIGNANT"),
		record("P_00003", "worse/image.dcm", "worse/mask.dcm", "BENIGN"),
	}

	res, err := NewBuilder(ext, zap.New(core), Options{Workers: 3}).Build(context.Background(), records)
	require.NoError(t, err)

	assert.Len(t, res.Labels, 1)
	assert.Contains(t, res.Labels, "ok/image.dcm")

	require.Len(t, res.Failures, 2)
	assert.Equal(t, "bad/mask.dcm", res.Failures[0].MaskPath)
	assert.Equal(t, "worse/mask.dcm", res.Failures[1].MaskPath)
	for _, f := range res.Failures {
		assert.ErrorIs(t, f.Err, geometry.ErrDecodeFailure)
	}
	assert.Equal(t, 2, logs.FilterMessage("mask skipped").Len())
}

func TestBuilder_Scale(t *testing.T) {
	ext := &fakeExtractor{rects: map[string][]geometry.Rect{
		"m.dcm": {{X: 10, Y: 10, W: 20, H: 40}},
	}}
	b := NewBuilder(ext, nil, Options{ScaleX: 0.5, ScaleY: 0.25})
	res, err := b.Build(context.Background(), []index.Record{record("P_1", "i.dcm", "m.dcm", "BENIGN")})
	require.NoError(t, err)
	assert.Equal(t, []geometry.Rect{{X: 5, Y: 3, W: 10, H: 10}}, res.Labels["i.dcm"].BoundingRects)
}

func TestBuilder_Progress(t *testing.T) {
	rects := map[string][]geometry.Rect{}
	var records []index.Record
	for i := 0; i < 25; i++ {
		mask := fmt.Sprintf("%d/mask.dcm", i)
		rects[mask] = []geometry.Rect{{X: i, Y: i, W: 4, H: 4}}
		records = append(records, record(fmt.Sprintf("P_%05d", i), fmt.Sprintf("%d/image.dcm", i), mask, "BENIGN"))
	}

	var last atomic.Int64
	b := NewBuilder(&fakeExtractor{rects: rects}, nil, Options{
		Workers:          4,
		ProgressCallback: func(current, total int) { last.Store(int64(current*1000 + total)) },
	})
	res, err := b.Build(context.Background(), records)
	require.NoError(t, err)
	assert.Len(t, res.Labels, 25)
	assert.EqualValues(t, 25*1000+25, last.Load())
}

func TestBuilder_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ext := &fakeExtractor{rects: map[string][]geometry.Rect{"m.dcm": nil}}
	_, err := NewBuilder(ext, nil, Options{Workers: 2}).Build(ctx, []index.Record{
		record("P_1", "i.dcm", "m.dcm", "BENIGN"),
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBuilder_NothingToDo(t *testing.T) {
	res, err := NewBuilder(&fakeExtractor{}, nil, Options{}).Build(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, res.Labels)
	assert.Zero(t, res.Skipped)
}

func TestBuilder_RealMasks(t *testing.T) {
	dir := t.TempDir()
	mask := geometry.NewMask(64, 48)
	mask.Fill(geometry.Rect{X: 10, Y: 8, W: 12, H: 9})
	mask.Fill(geometry.Rect{X: 40, Y: 30, W: 2, H: 2})
	maskPath := filepath.Join(dir, "mask.dcm")
	require.NoError(t, geometry.WriteDICOM(maskPath, mask))

	res, err := NewBuilder(geometry.NewExtractor(nil), nil, Options{}).Build(context.Background(), []index.Record{
		record("P_00001", filepath.Join(dir, "image.dcm"), maskPath, "MALIGNANT"),
	})
	require.NoError(t, err)
	assert.Equal(t, Labels{
		filepath.Join(dir, "image.dcm"): {
			BoundingRects: []geometry.Rect{{X: 10, Y: 8, W: 12, H: 9}},
			Pathology:     "MALIGNANT",
		},
	}, res.Labels)
}

func TestJSON_RoundTrip(t *testing.T) {
	in := Labels{
		"a/image.dcm": {BoundingRects: []geometry.Rect{{X: 1, Y: 2, W: 3, H: 4}}, Pathology: "BENIGN"},
		"b/image.dcm": {BoundingRects: []geometry.Rect{}, Pathology: "MALIGNANT"},
	}
	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, in))
	assert.JSONEq(t, `{
		"a/image.dcm": {"bounding_rects": [[1,2,3,4]], "pathology": "BENIGN"},
		"b/image.dcm": {"bounding_rects": [], "pathology": "MALIGNANT"}
	}`, buf.String())

	out, err := ReadJSON(&buf)
	require.NoError(t, err)
	assert.Equal(t, in, out)

	path := filepath.Join(t.TempDir(), "labels.json")
	require.NoError(t, WriteFile(path, in))
	fromFile, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, in, fromFile)
}

func TestReadJSON_Invalid(t *testing.T) {
	_, err := ReadJSON(bytes.NewBufferString(`{"a": {"bounding_rects": [[1,2]]}}`))
	assert.Error(t, err)
}

func TestFailure_Error(t *testing.T) {
	f := Failure{MaskPath: "m.dcm", Err: errors.New("boom")}
	assert.Equal(t, "m.dcm: boom", f.Error())
}
