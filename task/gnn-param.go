package task

import (
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/ScottSallinen/ssgas/enforce"
	"github.com/ScottSallinen/ssgas/utils"
)

// Training parameters of the GCN, read from a "<key>: <value>" file.
type GNNParam struct {
	NumLayers    int
	NumLabels    int
	InputDim     int
	HiddenDim    int
	NumSamples   int // Global number of samples.
	NumEdges     int
	LearningRate float64
	TrainRatio   float64
	ValRatio     float64
	TestRatio    float64
}

// Lines of a config file that were not applied.
type ConfigReport struct {
	Skipped []string
}

func (r ConfigReport) Partial() bool { return len(r.Skipped) > 0 }

func ReadConfig(path string) (GNNParam, ConfigReport, error) {
	file, err := os.Open(path)
	if err != nil {
		return GNNParam{}, ConfigReport{}, enforce.Errorf(enforce.ErrFile, "open config %s: %v", path, err)
	}
	defer file.Close()
	return ParseConfig(file)
}

// Unknown keys and lines without a colon are skipped with a warning. A malformed number is an ErrFile.
func ParseConfig(r io.Reader) (GNNParam, ConfigReport, error) {
	var p GNNParam
	var report ConfigReport
	ints := map[string]*int{
		"num_layers":  &p.NumLayers,
		"num_labels":  &p.NumLabels,
		"input_dim":   &p.InputDim,
		"hidden_dim":  &p.HiddenDim,
		"num_samples": &p.NumSamples,
		"num_edges":   &p.NumEdges,
	}
	reals := map[string]*float64{
		"learning_rate": &p.LearningRate,
		"train_ratio":   &p.TrainRatio,
		"val_ratio":     &p.ValRatio,
		"test_ratio":    &p.TestRatio,
	}
	err := utils.EachFieldLine(r, func(lineNo int, fields []string) error {
		line := strings.Join(fields, " ")
		key, value, ok := strings.Cut(line, ":")
		key, value = strings.TrimSpace(key), strings.TrimSpace(value)
		if !ok || key == "" {
			log.Warn().Int("line", lineNo).Str("text", line).Msg("Config line has no colon, skipped")
			report.Skipped = append(report.Skipped, line)
			return nil
		}
		if dst, found := ints[key]; found {
			v, err := strconv.Atoi(value)
			if err != nil {
				return enforce.Errorf(enforce.ErrFile, "line %d: %s: %v", lineNo, key, err)
			}
			*dst = v
			return nil
		}
		if dst, found := reals[key]; found {
			v, err := strconv.ParseFloat(value, 64)
			if err != nil {
				return enforce.Errorf(enforce.ErrFile, "line %d: %s: %v", lineNo, key, err)
			}
			*dst = v
			return nil
		}
		log.Warn().Int("line", lineNo).Str("key", key).Msg("Unknown config parameter, skipped")
		report.Skipped = append(report.Skipped, line)
		return nil
	})
	return p, report, err
}
