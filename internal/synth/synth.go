// Package synth writes small synthetic datasets laid out like CBIS-DDSM:
// study directories with full mammograms, ROI masks and cropped lesions,
// plus the four case description tables.
package synth

import (
	"fmt"
	"hash/fnv"
	randv2 "math/rand/v2"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/frame"
	"github.com/suyashkumar/dicom/pkg/tag"
	"go.uber.org/zap"

	"github.com/mrsinham/ddsmlabel/internal/geometry"
	"github.com/mrsinham/ddsmlabel/internal/identity"
	"github.com/mrsinham/ddsmlabel/internal/metadata"
)

// DatasetDir is the directory holding the study directories, as in the
// public release.
const DatasetDir = "CBIS-DDSM"

// Pathologies used by the dataset.
var Pathologies = []string{"MALIGNANT", "BENIGN", "BENIGN_WITHOUT_CALLBACK"}

const (
	sopClassMammography = "1.2.840.10008.5.1.4.1.1.1.2"
	sopClassSecondary   = "1.2.840.10008.5.1.4.1.1.7"
)

// Options configures Generate.
type Options struct {
	OutputDir     string
	CasesPerTable int   // cases in each of the selected tables, default 2
	Width         int   // full image width, default 1280
	Height        int   // full image height, default 1024
	Seed          int64 // 0 derives the seed from OutputDir
	Workers       int   // parallel workers, runtime.NumCPU() when <= 0

	// Tables selects which lesion type and split combinations get cases.
	// Empty means all four.
	Tables []metadata.Key

	// NoiseSpeck adds a 2x2 speck to every mask, below the default area
	// threshold.
	NoiseSpeck bool

	Logger           *zap.Logger
	ProgressCallback func(current, total int)
}

// Case describes one generated study pair.
type Case struct {
	Key        metadata.Key
	PatientID  string
	Laterality identity.Laterality
	View       identity.View
	Pathology  string
	Lesion     geometry.Rect // bounding rectangle of the lesion in the mask

	ImagePath string
	MaskPath  string
	CropPath  string
}

// StudyDir returns the full image study directory name.
func (c Case) StudyDir() string {
	return fmt.Sprintf("%s-%s_%s_%s_%s", c.Key.LesionType, c.Key.Split, c.PatientID, c.Laterality, c.View)
}

// Result lists what Generate wrote.
type Result struct {
	Root   string // dataset root to index (OutputDir)
	Cases  []Case
	Tables []string // case description CSV paths
}

// caseTask holds everything needed to write one case.
type caseTask struct {
	index    int
	c        Case
	seed     uint64
	width    int
	height   int
	speck    bool
	elements func(series, sopInstance, description string) []*dicom.Element
}

// Generate writes a synthetic dataset under opts.OutputDir.
func Generate(opts Options) (*Result, error) {
	if opts.OutputDir == "" {
		return nil, fmt.Errorf("output directory is required")
	}
	if opts.CasesPerTable <= 0 {
		opts.CasesPerTable = 2
	}
	if opts.Width <= 0 {
		opts.Width = 1280
	}
	if opts.Height <= 0 {
		opts.Height = 1024
	}
	if opts.Width < 64 || opts.Height < 64 {
		return nil, fmt.Errorf("image must be at least 64x64, got %dx%d", opts.Width, opts.Height)
	}
	if len(opts.Tables) == 0 {
		opts.Tables = metadata.AllKeys()
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	seed := opts.Seed
	if seed == 0 {
		h := fnv.New64a()
		_, _ = h.Write([]byte(opts.OutputDir))
		seed = int64(h.Sum64())
	}
	logger.Info("generating synthetic dataset",
		zap.String("output", opts.OutputDir),
		zap.Int64("seed", seed),
		zap.Int("cases_per_table", opts.CasesPerTable),
		zap.Int("width", opts.Width),
		zap.Int("height", opts.Height))

	if err := os.MkdirAll(filepath.Join(opts.OutputDir, DatasetDir), 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}

	// Phase 1: decide every case up front so that the output does not
	// depend on worker scheduling.
	tasks := planCases(opts, seed)

	// Phase 2: write the DICOM files in parallel.
	if err := runTasks(tasks, opts, logger); err != nil {
		return nil, err
	}

	res := &Result{Root: opts.OutputDir}
	for _, t := range tasks {
		res.Cases = append(res.Cases, t.c)
	}

	// Phase 3: case description tables.
	for _, key := range metadata.AllKeys() {
		path := filepath.Join(opts.OutputDir, key.FileName())
		if err := writeCaseTable(path, key, res.Cases, opts.OutputDir); err != nil {
			return nil, err
		}
		res.Tables = append(res.Tables, path)
	}

	logger.Info("synthetic dataset written",
		zap.Int("cases", len(res.Cases)),
		zap.Int("tables", len(res.Tables)))
	return res, nil
}

func planCases(opts Options, seed int64) []caseTask {
	var tasks []caseTask
	patient := 0
	for _, key := range opts.Tables {
		for i := 0; i < opts.CasesPerTable; i++ {
			patient++
			s := caseSeed(seed, key.String(), i)
			rng := randv2.New(randv2.NewPCG(s, s))

			laterality := identity.Left
			if rng.IntN(2) == 1 {
				laterality = identity.Right
			}
			view := identity.CC
			if rng.IntN(2) == 1 {
				view = identity.MLO
			}

			c := Case{
				Key:        key,
				PatientID:  fmt.Sprintf("%s%05d", identity.PatientIDPrefix, patient),
				Laterality: laterality,
				View:       view,
				Pathology:  Pathologies[rng.IntN(len(Pathologies))],
			}

			base := filepath.Join(opts.OutputDir, DatasetDir)
			study := c.StudyDir()
			imageStudy := deterministicUID(fmt.Sprintf("%d_%s_image_study", seed, study))
			imageSeries := deterministicUID(fmt.Sprintf("%d_%s_image_series", seed, study))
			roiStudy := deterministicUID(fmt.Sprintf("%d_%s_roi_study", seed, study))
			roiSeries := deterministicUID(fmt.Sprintf("%d_%s_roi_series", seed, study))

			// The release is not consistent about which of the two ROI
			// files is the mask.
			maskName, cropName := "000000.dcm", "000001.dcm"
			if rng.IntN(2) == 1 {
				maskName, cropName = cropName, maskName
			}
			c.ImagePath = filepath.Join(base, study, imageStudy, imageSeries, "000000.dcm")
			c.MaskPath = filepath.Join(base, study+"_1", roiStudy, roiSeries, maskName)
			c.CropPath = filepath.Join(base, study+"_1", roiStudy, roiSeries, cropName)

			tasks = append(tasks, caseTask{
				index:    len(tasks),
				c:        c,
				seed:     s,
				width:    opts.Width,
				height:   opts.Height,
				speck:    opts.NoiseSpeck,
				elements: caseElements(c, study),
			})
		}
	}
	return tasks
}

// caseElements returns a builder for the patient level elements shared by
// the three files of a case.
func caseElements(c Case, study string) func(series, sopInstance, description string) []*dicom.Element {
	imageLaterality := "L"
	if c.Laterality == identity.Right {
		imageLaterality = "R"
	}
	return func(series, sopInstance, description string) []*dicom.Element {
		sopClass := sopClassMammography
		if description != "full mammogram images" {
			sopClass = sopClassSecondary
		}
		return []*dicom.Element{
			mustNewElement(tag.MediaStorageSOPClassUID, []string{sopClass}),
			mustNewElement(tag.MediaStorageSOPInstanceUID, []string{sopInstance}),
			mustNewElement(tag.TransferSyntaxUID, []string{"1.2.840.10008.1.2.1"}),
			mustNewElement(tag.SOPClassUID, []string{sopClass}),
			mustNewElement(tag.SOPInstanceUID, []string{sopInstance}),
			mustNewElement(tag.Modality, []string{"MG"}),
			mustNewElement(tag.PatientName, []string{study}),
			mustNewElement(tag.PatientID, []string{study}),
			mustNewElement(tag.BodyPartExamined, []string{"BREAST"}),
			mustNewElement(tag.SeriesInstanceUID, []string{series}),
			mustNewElement(tag.SeriesDescription, []string{description}),
			mustNewElement(tag.ImageLaterality, []string{imageLaterality}),
			mustNewElement(tag.ViewPosition, []string{string(c.View)}),
		}
	}
}

// mustNewElement creates a DICOM element, panicking on error.
func mustNewElement(t tag.Tag, data any) *dicom.Element {
	elem, err := dicom.NewElement(t, data)
	if err != nil {
		panic(fmt.Sprintf("failed to create element %v: %v", t, err))
	}
	return elem
}

func runTasks(tasks []caseTask, opts Options, logger *zap.Logger) error {
	numWorkers := opts.Workers
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}
	numWorkers = min(numWorkers, len(tasks))
	if numWorkers == 0 {
		return nil
	}

	taskChan := make(chan *caseTask, len(tasks))
	resultChan := make(chan struct {
		index int
		err   error
	}, len(tasks))

	var wg sync.WaitGroup
	for w := 0; w < numWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for t := range taskChan {
				err := writeCase(t)
				resultChan <- struct {
					index int
					err   error
				}{t.index, err}
			}
		}()
	}

	for i := range tasks {
		taskChan <- &tasks[i]
	}
	close(taskChan)

	go func() {
		wg.Wait()
		close(resultChan)
	}()

	completed := 0
	var firstErr error
	for result := range resultChan {
		if result.err != nil && firstErr == nil {
			firstErr = fmt.Errorf("generate case %d: %w", result.index, result.err)
		}
		completed++
		if opts.ProgressCallback != nil {
			opts.ProgressCallback(completed, len(tasks))
		}
		if completed%10 == 0 || completed == len(tasks) {
			logger.Debug("synth progress", zap.Int("done", completed), zap.Int("total", len(tasks)))
		}
	}
	return firstErr
}

// writeCase writes the full image, the ROI mask and the cropped lesion of
// one case. It records the lesion rectangle in t.c.
func writeCase(t *caseTask) error {
	rng := randv2.New(randv2.NewPCG(t.seed, t.seed^0x9e3779b97f4a7c15))
	w, h := t.width, t.height

	// Lesion between 5% and 20% of each dimension, away from the borders.
	lw := w/20 + rng.IntN(w*3/20)
	lh := h/20 + rng.IntN(h*3/20)
	box := geometry.Rect{
		X: w/10 + rng.IntN(w*8/10-lw),
		Y: h/10 + rng.IntN(h*8/10-lh),
		W: lw,
		H: lh,
	}

	mask := geometry.NewMask(w, h)
	t.c.Lesion = drawLesion(mask, box)

	right := t.c.Laterality == identity.Right
	pix := mammogram(rng, w, h, right, mask, t.c.Lesion)
	overlayText(pix, w, h, fmt.Sprintf("%s %s %s", t.c.PatientID, t.c.Laterality, t.c.View), right)

	if t.speck {
		// Opposite corner from the label, inside the image.
		mask.Fill(geometry.Rect{X: w - 6, Y: h - 6, W: 2, H: 2})
	}

	for _, dir := range []string{filepath.Dir(t.c.ImagePath), filepath.Dir(t.c.MaskPath)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create study directory: %w", err)
		}
	}

	imageSeries := filepath.Base(filepath.Dir(t.c.ImagePath))
	roiSeries := filepath.Base(filepath.Dir(t.c.MaskPath))
	study := t.c.StudyDir()

	imageMeta := t.elements(imageSeries, deterministicUID(t.c.ImagePath+"_sop"), "full mammogram images")
	if err := writeImage16(t.c.ImagePath, pix, w, h, imageMeta); err != nil {
		return err
	}

	maskMeta := t.elements(roiSeries, deterministicUID(study+"_mask_sop"), "ROI mask images")
	if err := geometry.WriteDICOM(t.c.MaskPath, mask, maskMeta...); err != nil {
		return err
	}

	cropMeta := t.elements(roiSeries, deterministicUID(study+"_crop_sop"), "cropped images")
	return writeImage16(t.c.CropPath, crop(pix, w, t.c.Lesion), t.c.Lesion.W, t.c.Lesion.H, cropMeta)
}

// writeImage16 writes a single-frame 16-bit MONOCHROME2 image.
func writeImage16(path string, pix []uint16, width, height int, meta []*dicom.Element) error {
	native := frame.NewNativeFrame[uint16](16, height, width, width*height, 1)
	copy(native.RawData, pix)

	elements := make([]*dicom.Element, 0, len(meta)+9)
	elements = append(elements, meta...)
	elements = append(elements,
		mustNewElement(tag.Rows, []int{height}),
		mustNewElement(tag.Columns, []int{width}),
		mustNewElement(tag.BitsAllocated, []int{16}),
		mustNewElement(tag.BitsStored, []int{16}),
		mustNewElement(tag.HighBit, []int{15}),
		mustNewElement(tag.PixelRepresentation, []int{0}),
		mustNewElement(tag.SamplesPerPixel, []int{1}),
		mustNewElement(tag.PhotometricInterpretation, []string{"MONOCHROME2"}),
		mustNewElement(tag.PixelData, dicom.PixelDataInfo{
			Frames: []*frame.Frame{{Encapsulated: false, NativeData: native}},
		}),
	)

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := dicom.Write(f, dicom.Dataset{Elements: elements}); err != nil {
		_ = f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}
