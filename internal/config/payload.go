package config

import (
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// fileConfig mirrors the on-disk shape. Pointer fields distinguish "unset"
// from zero values so the file overlays Default().
type fileConfig struct {
	Engine       *fileEngine       `json:"engine" yaml:"engine"`
	Session      *fileSession      `json:"session" yaml:"session"`
	Availability *fileAvailability `json:"availability" yaml:"availability"`
	Permission   *filePermission   `json:"permission" yaml:"permission"`
	Popup        *filePopup        `json:"popup" yaml:"popup"`
	Cues         *fileCues         `json:"cues" yaml:"cues"`
	History      *fileHistory      `json:"history" yaml:"history"`
	Bus          *fileBus          `json:"bus" yaml:"bus"`
	HTTP         *fileListen       `json:"http" yaml:"http"`
	GRPC         *fileListen       `json:"grpc" yaml:"grpc"`
	Log          *fileLog          `json:"log" yaml:"log"`
}

type fileEngine struct {
	Backend       *string `json:"backend" yaml:"backend"`
	Command       *string `json:"command" yaml:"command"`
	Endpoint      *string `json:"endpoint" yaml:"endpoint"`
	HealthGRPC    *string `json:"health_grpc" yaml:"health_grpc"`
	DialTimeoutMS *int    `json:"dial_timeout_ms" yaml:"dial_timeout_ms"`
}

type fileSession struct {
	Language         *string `json:"language" yaml:"language"`
	MaxResults       *int    `json:"max_results" yaml:"max_results"`
	PartialResults   *bool   `json:"partial_results" yaml:"partial_results"`
	SilenceTimeoutMS *int    `json:"silence_timeout_ms" yaml:"silence_timeout_ms"`
}

type fileAvailability struct {
	RequireInput *bool   `json:"require_input" yaml:"require_input"`
	Input        *string `json:"input" yaml:"input"`
}

type filePermission struct {
	Path *string `json:"path" yaml:"path"`
}

type filePopup struct {
	Command   *string `json:"command" yaml:"command"`
	TimeoutMS *int    `json:"timeout_ms" yaml:"timeout_ms"`
}

type fileCues struct {
	Enable       *bool   `json:"enable" yaml:"enable"`
	StartFile    *string `json:"start_file" yaml:"start_file"`
	StopFile     *string `json:"stop_file" yaml:"stop_file"`
	CompleteFile *string `json:"complete_file" yaml:"complete_file"`
}

type fileHistory struct {
	Enable        *bool   `json:"enable" yaml:"enable"`
	Path          *string `json:"path" yaml:"path"`
	RetentionDays *int    `json:"retention_days" yaml:"retention_days"`
}

type fileBus struct {
	Enable           *bool       `json:"enable" yaml:"enable"`
	Servers          *stringList `json:"servers" yaml:"servers"`
	SubjectPrefix    *string     `json:"subject_prefix" yaml:"subject_prefix"`
	ConnectTimeoutMS *int        `json:"connect_timeout_ms" yaml:"connect_timeout_ms"`
}

type fileListen struct {
	Bind *string `json:"bind" yaml:"bind"`
}

type fileLog struct {
	Level *string `json:"level" yaml:"level"`
}

// stringList accepts either a list or a comma-delimited string.
type stringList []string

func (l *stringList) UnmarshalJSON(data []byte) error {
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*l = list
		return nil
	}
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*l = splitList(single)
		return nil
	}
	return fmt.Errorf("expected string array or comma-delimited string")
}

func (l *stringList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.SequenceNode:
		var list []string
		if err := node.Decode(&list); err != nil {
			return err
		}
		*l = list
		return nil
	case yaml.ScalarNode:
		*l = splitList(node.Value)
		return nil
	default:
		return fmt.Errorf("line %d: expected string list or comma-delimited string", node.Line)
	}
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = strings.TrimSpace(*src)
	}
}

func setInt(dst *int, src *int) {
	if src != nil {
		*dst = *src
	}
}

func setBool(dst *bool, src *bool) {
	if src != nil {
		*dst = *src
	}
}

func (f fileConfig) applyTo(cfg *Config) {
	if e := f.Engine; e != nil {
		if e.Backend != nil {
			cfg.Engine.Backend = strings.ToLower(strings.TrimSpace(*e.Backend))
		}
		setString(&cfg.Engine.Command, e.Command)
		setString(&cfg.Engine.Endpoint, e.Endpoint)
		setString(&cfg.Engine.HealthGRPC, e.HealthGRPC)
		setInt(&cfg.Engine.DialTimeoutMS, e.DialTimeoutMS)
	}

	if s := f.Session; s != nil {
		setString(&cfg.Session.Language, s.Language)
		setInt(&cfg.Session.MaxResults, s.MaxResults)
		setBool(&cfg.Session.PartialResults, s.PartialResults)
		setInt(&cfg.Session.SilenceTimeoutMS, s.SilenceTimeoutMS)
	}

	if a := f.Availability; a != nil {
		setBool(&cfg.Availability.RequireInput, a.RequireInput)
		setString(&cfg.Availability.Input, a.Input)
	}

	if p := f.Permission; p != nil {
		setString(&cfg.Permission.Path, p.Path)
	}

	if p := f.Popup; p != nil {
		setString(&cfg.Popup.Command, p.Command)
		setInt(&cfg.Popup.TimeoutMS, p.TimeoutMS)
	}

	if c := f.Cues; c != nil {
		setBool(&cfg.Cues.Enable, c.Enable)
		setString(&cfg.Cues.StartFile, c.StartFile)
		setString(&cfg.Cues.StopFile, c.StopFile)
		setString(&cfg.Cues.CompleteFile, c.CompleteFile)
	}

	if h := f.History; h != nil {
		setBool(&cfg.History.Enable, h.Enable)
		setString(&cfg.History.Path, h.Path)
		setInt(&cfg.History.RetentionDays, h.RetentionDays)
	}

	if b := f.Bus; b != nil {
		setBool(&cfg.Bus.Enable, b.Enable)
		if b.Servers != nil {
			cfg.Bus.Servers = append([]string(nil), (*b.Servers)...)
		}
		setString(&cfg.Bus.SubjectPrefix, b.SubjectPrefix)
		setInt(&cfg.Bus.ConnectTimeoutMS, b.ConnectTimeoutMS)
	}

	if f.HTTP != nil {
		setString(&cfg.HTTP.Bind, f.HTTP.Bind)
	}
	if f.GRPC != nil {
		setString(&cfg.GRPC.Bind, f.GRPC.Bind)
	}
	if f.Log != nil && f.Log.Level != nil {
		cfg.Log.Level = strings.ToLower(strings.TrimSpace(*f.Log.Level))
	}
}
