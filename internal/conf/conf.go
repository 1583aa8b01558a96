// Package conf contains the struct that holds the configuration of the software.
package conf

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/bluenviron/avrecorder/internal/conf/env"
	"github.com/bluenviron/avrecorder/internal/conf/yamlwrapper"
	"github.com/bluenviron/avrecorder/internal/logger"
)

var supportedAudioSampleRates = []int{
	8000, 11025, 16000, 22050, 32000, 44100, 48000, 88200, 96000,
}

func firstThatExists(paths []string) string {
	for _, pa := range paths {
		_, err := os.Stat(pa)
		if err == nil {
			return pa
		}
	}
	return ""
}

// Conf is a configuration.
type Conf struct {
	// General
	LogLevel         LogLevel        `json:"logLevel"`
	LogDestinations  LogDestinations `json:"logDestinations"`
	LogFile          string          `json:"logFile"`
	CommandQueueSize int             `json:"commandQueueSize"`
	Metrics          bool            `json:"metrics"`
	MetricsAddress   string          `json:"metricsAddress"`
	PPROF            bool            `json:"pprof"`
	PPROFAddress     string          `json:"pprofAddress"`

	// Recording
	RecordFormat        RecordFormat   `json:"recordFormat"`
	RecordPartDuration  StringDuration `json:"recordPartDuration"`
	SpoolDirectory      string         `json:"spoolDirectory"`
	DrainTimeout        StringDuration `json:"drainTimeout"`
	RunOnRecordComplete string         `json:"runOnRecordComplete"`

	// Video
	VideoWidth  int    `json:"videoWidth"`
	VideoHeight int    `json:"videoHeight"`
	VideoFPS    int    `json:"videoFPS"`
	VideoPreset string `json:"videoPreset"`

	// Audio
	Audio             bool `json:"audio"`
	AudioSampleRate   int  `json:"audioSampleRate"`
	AudioChannelCount int  `json:"audioChannelCount"`
	AudioBitDepth     int  `json:"audioBitDepth"`
}

func (conf *Conf) setDefaults() {
	// General
	conf.LogLevel = LogLevel(logger.Info)
	conf.LogDestinations = LogDestinations{LogDestination(logger.DestinationStdout)}
	conf.LogFile = "avrecorder.log"
	conf.CommandQueueSize = 64
	conf.MetricsAddress = ":9998"
	conf.PPROFAddress = ":9999"

	// Recording
	conf.RecordFormat = RecordFormatMP4
	conf.RecordPartDuration = StringDuration(1 * time.Second)
	conf.DrainTimeout = StringDuration(10 * time.Millisecond)

	// Video
	conf.VideoWidth = 640
	conf.VideoHeight = 480
	conf.VideoFPS = 30
	conf.VideoPreset = "veryfast"

	// Audio
	conf.Audio = true
	conf.AudioSampleRate = 8000
	conf.AudioChannelCount = 1
	conf.AudioBitDepth = 16
}

// Load loads a Conf.
func Load(fpath string, defaultConfPaths []string) (*Conf, string, error) {
	conf := &Conf{}

	fpath, err := conf.loadFromFile(fpath, defaultConfPaths)
	if err != nil {
		return nil, "", err
	}

	err = env.Load("AVR", conf)
	if err != nil {
		return nil, "", err
	}

	err = conf.Validate()
	if err != nil {
		return nil, "", err
	}

	return conf, fpath, nil
}

func (conf *Conf) loadFromFile(fpath string, defaultConfPaths []string) (string, error) {
	conf.setDefaults()

	if fpath == "" {
		fpath = firstThatExists(defaultConfPaths)

		// when the configuration file is not explicitly set,
		// it is optional.
		if fpath == "" {
			return "", nil
		}
	}

	byts, err := os.ReadFile(fpath)
	if err != nil {
		return "", err
	}

	err = yamlwrapper.Unmarshal(byts, conf)
	if err != nil {
		return "", err
	}

	return fpath, nil
}

// Clone clones the configuration.
func (conf Conf) Clone() *Conf {
	enc, err := json.Marshal(conf)
	if err != nil {
		panic(err)
	}

	var dest Conf
	err = json.Unmarshal(enc, &dest)
	if err != nil {
		panic(err)
	}

	return &dest
}

// Validate checks the configuration for errors.
func (conf *Conf) Validate() error {
	// General

	if conf.CommandQueueSize <= 0 || (conf.CommandQueueSize&(conf.CommandQueueSize-1)) != 0 {
		return fmt.Errorf("'commandQueueSize' must be a power of two")
	}
	if conf.Metrics && conf.MetricsAddress == "" {
		return fmt.Errorf("'metricsAddress' must be set when metrics are enabled")
	}
	if conf.PPROF && conf.PPROFAddress == "" {
		return fmt.Errorf("'pprofAddress' must be set when pprof is enabled")
	}

	// Recording

	if conf.RecordPartDuration <= 0 {
		return fmt.Errorf("'recordPartDuration' must be greater than zero")
	}
	if conf.DrainTimeout <= 0 {
		return fmt.Errorf("'drainTimeout' must be greater than zero")
	}

	// Video

	if conf.VideoWidth <= 0 || (conf.VideoWidth%2) != 0 {
		return fmt.Errorf("'videoWidth' must be a positive even number")
	}
	if conf.VideoHeight <= 0 || (conf.VideoHeight%2) != 0 {
		return fmt.Errorf("'videoHeight' must be a positive even number")
	}
	if conf.VideoFPS <= 0 {
		return fmt.Errorf("'videoFPS' must be greater than zero")
	}

	// Audio

	if conf.Audio {
		found := false
		for _, rate := range supportedAudioSampleRates {
			if rate == conf.AudioSampleRate {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("unsupported audio sample rate: %d", conf.AudioSampleRate)
		}
		if conf.AudioChannelCount < 1 || conf.AudioChannelCount > 8 {
			return fmt.Errorf("'audioChannelCount' must be between 1 and 8")
		}
		if conf.AudioBitDepth != 16 && conf.AudioBitDepth != 24 {
			return fmt.Errorf("'audioBitDepth' must be 16 or 24")
		}
	}

	return nil
}
