package output

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/i474232898/climate-stripes-data/internal/climate"
)

const (
	DefaultCitiesFile = "french_cities_climate.json"
	DefaultGlobalFile = "global_climate_data.json"
)

// Writer persists generated data as pretty-printed JSON files under a directory.
type Writer struct {
	dir        string
	citiesFile string
	globalFile string
	logger     zerolog.Logger
}

// NewWriter creates a Writer. Empty file names fall back to the defaults.
func NewWriter(dir, citiesFile, globalFile string, logger zerolog.Logger) *Writer {
	if citiesFile == "" {
		citiesFile = DefaultCitiesFile
	}
	if globalFile == "" {
		globalFile = DefaultGlobalFile
	}
	return &Writer{
		dir:        dir,
		citiesFile: citiesFile,
		globalFile: globalFile,
		logger:     logger,
	}
}

// Dir returns the output directory.
func (w *Writer) Dir() string {
	return w.dir
}

// WriteCities writes the per-city result set and returns the file path.
func (w *Writer) WriteCities(rs *climate.ResultSet) (string, error) {
	return w.WriteJSON(w.citiesFile, rs)
}

// WriteGlobal writes the global sample record and returns the file path.
func (w *Writer) WriteGlobal(g climate.GlobalRecord) (string, error) {
	return w.WriteJSON(w.globalFile, g)
}

// ReadCities loads the per-city result set written by WriteCities.
func (w *Writer) ReadCities() (*climate.ResultSet, error) {
	rs := climate.NewResultSet()
	if err := w.ReadJSON(w.citiesFile, rs); err != nil {
		return nil, err
	}
	return rs, nil
}

// WriteJSON encodes data into dir/name. The file is replaced atomically.
func (w *Writer) WriteJSON(name string, data any) (string, error) {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}

	path := filepath.Join(w.dir, name)
	tempFile := path + ".tmp"

	file, err := os.Create(tempFile)
	if err != nil {
		return "", err
	}

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	encoder.SetEscapeHTML(false)

	if err := encoder.Encode(data); err != nil {
		file.Close()
		os.Remove(tempFile)
		return "", fmt.Errorf("encode %s: %w", name, err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tempFile)
		return "", err
	}
	if err := os.Rename(tempFile, path); err != nil {
		os.Remove(tempFile)
		return "", err
	}

	w.logger.Info().Str("path", path).Msg("climate data saved")
	return path, nil
}

// ReadJSON decodes dir/name into v.
func (w *Writer) ReadJSON(name string, v any) error {
	file, err := os.Open(filepath.Join(w.dir, name))
	if err != nil {
		return err
	}
	defer file.Close()

	return json.NewDecoder(file).Decode(v)
}
