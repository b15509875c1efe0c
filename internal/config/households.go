package config

import (
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/samsmart/pd-boxes/internal/telemetry"
)

// Households is the parsed sensors/households declaration: which sensors
// exist (and their kind), and which box recorded for which household
// under which tag, when.
type Households struct {
	Sensors       telemetry.SensorSet
	Timeframes    map[string][]telemetry.Timeframe // key: household ID
	TagExceptions []telemetry.TagException
}

// householdsFile is the YAML shape of the declaration. Timestamps are
// ISO 8601; an absent newest_record means the assignment is still open.
type householdsFile struct {
	Sensors    map[string]string `yaml:"sensors"`
	Households map[string]struct {
		Timeframes []struct {
			Source       string `yaml:"source"`
			Tag          string `yaml:"tag"`
			OldestRecord string `yaml:"oldest_record"`
			NewestRecord string `yaml:"newest_record"`
		} `yaml:"timeframes"`
	} `yaml:"households"`
	TagExceptions []struct {
		Household string `yaml:"household"`
		Tag       string `yaml:"tag"`
	} `yaml:"tag_exceptions"`
}

// LoadHouseholds reads and parses the households file.
func LoadHouseholds(path string) (*Households, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening households file: %w", err)
	}
	defer f.Close()
	return ParseHouseholds(f)
}

// ParseHouseholds parses a households declaration from a reader.
func ParseHouseholds(r io.Reader) (*Households, error) {
	var file householdsFile
	if err := yaml.NewDecoder(r).Decode(&file); err != nil {
		return nil, fmt.Errorf("parsing households file: %w", err)
	}

	sensors := make(telemetry.SensorSet, len(file.Sensors))
	for id, kind := range file.Sensors {
		switch telemetry.SensorKind(kind) {
		case telemetry.KindNominal, telemetry.KindCardinal:
			sensors[id] = telemetry.SensorKind(kind)
		default:
			return nil, fmt.Errorf("sensor %q has unknown kind %q", id, kind)
		}
	}

	timeframes := make(map[string][]telemetry.Timeframe, len(file.Households))
	for household, decl := range file.Households {
		for _, tf := range decl.Timeframes {
			oldest, err := parseTimestamp(tf.OldestRecord)
			if err != nil {
				return nil, fmt.Errorf("household %s: oldest_record: %w", household, err)
			}
			var newest time.Time
			if tf.NewestRecord != "" {
				newest, err = parseTimestamp(tf.NewestRecord)
				if err != nil {
					return nil, fmt.Errorf("household %s: newest_record: %w", household, err)
				}
			}
			timeframes[household] = append(timeframes[household], telemetry.Timeframe{
				Device:       tf.Source,
				Household:    household,
				Tag:          tf.Tag,
				OldestRecord: oldest,
				NewestRecord: newest,
			})
		}
	}

	exceptions := make([]telemetry.TagException, 0, len(file.TagExceptions))
	for _, e := range file.TagExceptions {
		exceptions = append(exceptions, telemetry.TagException{Household: e.Household, Tag: e.Tag})
	}

	return &Households{Sensors: sensors, Timeframes: timeframes, TagExceptions: exceptions}, nil
}

func parseTimestamp(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%q is not an ISO 8601 timestamp", s)
	}
	return t.UTC(), nil
}
