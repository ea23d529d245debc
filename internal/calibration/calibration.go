// Package calibration loads and stores the stereo calibration artifacts: one CBOR
// file per named matrix, per side where the matrix is side specific.
package calibration

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fxamacker/cbor/v2"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"
)

type Side string

const (
	Left   Side = "left"
	Right  Side = "right"
	Shared Side = ""
)

// Field is one named matrix. Loaded is false until a file was read or a value set.
type Field struct {
	Name   string
	Side   Side
	Mat    *mat.Dense
	Loaded bool
}

// Set stores m and marks the field loaded.
func (f *Field) Set(m *mat.Dense) {
	f.Mat = m
	f.Loaded = m != nil
}

// FileName is <name>_<side>.cbor, or <name>.cbor for shared fields.
func (f *Field) FileName() string {
	if f.Side == Shared {
		return f.Name + ".cbor"
	}
	return fmt.Sprintf("%s_%s.cbor", f.Name, f.Side)
}

// SideCalibration holds the matrices of one camera.
type SideCalibration struct {
	CameraMatrix     Field
	DistCoefs        Field
	RectTransform    Field
	Projection       Field
	ValidBox         Field
	UndistortionMap  Field
	RectificationMap Field
}

func newSide(side Side) SideCalibration {
	return SideCalibration{
		CameraMatrix:     Field{Name: "cam_mats", Side: side},
		DistCoefs:        Field{Name: "dist_coefs", Side: side},
		RectTransform:    Field{Name: "rect_trans", Side: side},
		Projection:       Field{Name: "proj_mats", Side: side},
		ValidBox:         Field{Name: "valid_boxes", Side: side},
		UndistortionMap:  Field{Name: "undistortion_map", Side: side},
		RectificationMap: Field{Name: "rectification_map", Side: side},
	}
}

func (s *SideCalibration) fields() []*Field {
	return []*Field{
		&s.CameraMatrix,
		&s.DistCoefs,
		&s.RectTransform,
		&s.Projection,
		&s.ValidBox,
		&s.UndistortionMap,
		&s.RectificationMap,
	}
}

// HasMaps reports whether both remap tables are present.
func (s *SideCalibration) HasMaps() bool {
	return s.UndistortionMap.Loaded && s.RectificationMap.Loaded
}

type StereoCalibration struct {
	Left  SideCalibration
	Right SideCalibration

	Rotation    Field
	Translation Field
	Essential   Field
	Fundamental Field
	DispToDepth Field
}

func New() *StereoCalibration {
	return &StereoCalibration{
		Left:        newSide(Left),
		Right:       newSide(Right),
		Rotation:    Field{Name: "rot_mat"},
		Translation: Field{Name: "trans_vec"},
		Essential:   Field{Name: "e_mat"},
		Fundamental: Field{Name: "f_mat"},
		DispToDepth: Field{Name: "disp_to_depth_mat"},
	}
}

// Fields lists every field in persistence order.
func (c *StereoCalibration) Fields() []*Field {
	fields := append(c.Left.fields(), c.Right.fields()...)
	return append(fields,
		&c.Rotation,
		&c.Translation,
		&c.Essential,
		&c.Fundamental,
		&c.DispToDepth,
	)
}

// Status maps each field's file name to its loaded state.
func (c *StereoCalibration) Status() map[string]bool {
	out := make(map[string]bool)
	for _, f := range c.Fields() {
		out[f.FileName()] = f.Loaded
	}
	return out
}

// Complete reports whether every field is loaded.
func (c *StereoCalibration) Complete() bool {
	for _, f := range c.Fields() {
		if !f.Loaded {
			return false
		}
	}
	return true
}

type matrixFile struct {
	Rows int       `cbor:"rows"`
	Cols int       `cbor:"cols"`
	Data []float64 `cbor:"data"`
}

// Load reads every field present in dir. Missing files are logged and leave the
// field unset; unreadable or malformed files are errors.
func Load(dir string, logger *zap.SugaredLogger) (*StereoCalibration, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	c := New()
	var errs error
	for _, f := range c.Fields() {
		path := filepath.Join(dir, f.FileName())
		m, err := readMatrix(path)
		if errors.Is(err, os.ErrNotExist) {
			logger.Warnw("calibration field missing", "field", f.Name, "side", string(f.Side), "path", path)
			continue
		}
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", path, err))
			continue
		}
		f.Set(m)
	}
	return c, errs
}

// Save writes every loaded field into dir.
func (c *StereoCalibration) Save(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	var errs error
	for _, f := range c.Fields() {
		if !f.Loaded {
			continue
		}
		errs = multierr.Append(errs, writeMatrix(filepath.Join(dir, f.FileName()), f.Mat))
	}
	return errs
}

func readMatrix(path string) (*mat.Dense, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var mf matrixFile
	if err := cbor.Unmarshal(data, &mf); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if mf.Rows <= 0 || mf.Cols <= 0 || mf.Rows*mf.Cols != len(mf.Data) {
		return nil, fmt.Errorf("shape %dx%d does not match %d values", mf.Rows, mf.Cols, len(mf.Data))
	}
	return mat.NewDense(mf.Rows, mf.Cols, mf.Data), nil
}

func writeMatrix(path string, m *mat.Dense) error {
	rows, cols := m.Dims()
	mf := matrixFile{Rows: rows, Cols: cols, Data: make([]float64, 0, rows*cols)}
	for r := 0; r < rows; r++ {
		mf.Data = append(mf.Data, m.RawRowView(r)...)
	}
	data, err := cbor.Marshal(mf)
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return os.WriteFile(path, data, 0o644)
}
