package config

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"strconv"

	"github.com/a8m/envsubst"
	"github.com/go-viper/mapstructure/v2"
	"github.com/invopop/jsonschema"
	"github.com/pkg/errors"

	"go.viam.com/combophy/phy/linktrain"
)

// Read reads a board configuration from the given file, expanding environment variables first.
func Read(filePath string) (*Board, error) {
	buf, err := envsubst.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	return FromReader(filePath, bytes.NewReader(buf))
}

// FromReader reads a board configuration from the given reader and specifies
// where, if applicable, the file the reader originated from.
func FromReader(originalPath string, r io.Reader) (*Board, error) {
	var raw map[string]interface{}
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, errors.Wrap(err, "failed to decode board config from json")
	}
	board := Board{ConfigFilePath: originalPath}
	if err := decode(raw, &board); err != nil {
		return nil, errors.Wrap(err, "failed to convert board config")
	}
	if err := board.Validate("board"); err != nil {
		return nil, err
	}
	return &board, nil
}

// decode converts a generic JSON document into a typed value, accepting "5us" style durations and
// "0x..." register addresses.
func decode(raw interface{}, result interface{}) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:     "json",
		Result:      result,
		ErrorUnused: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			hexStringToUintHook,
		),
	})
	if err != nil {
		return err
	}
	return decoder.Decode(raw)
}

func hexStringToUintHook(from, to reflect.Type, data interface{}) (interface{}, error) {
	if from.Kind() != reflect.String || to.Kind() != reflect.Uint64 {
		return data, nil
	}
	v, err := strconv.ParseUint(data.(string), 0, 64)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid address %q", data)
	}
	return v, nil
}

// LinkTrainingTable loads the calibration file named by the board, relative to the board file.
func (b *Board) LinkTrainingTable() (*linktrain.Table, error) {
	if b.CalibrationFile == "" {
		return nil, errors.New("no calibration_file configured")
	}
	path := b.CalibrationFile
	if !filepath.IsAbs(path) && b.ConfigFilePath != "" {
		path = filepath.Join(filepath.Dir(b.ConfigFilePath), path)
	}
	//nolint:gosec
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "opening calibration file")
	}
	defer func() {
		_ = f.Close()
	}()
	return linktrain.Load(f)
}

// Schema returns the JSON schema of a board configuration.
func Schema() *jsonschema.Schema {
	return jsonschema.Reflect(&Board{})
}
