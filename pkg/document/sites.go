package document

import (
	"fmt"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

type Mode string

const (
	ModeIncremental Mode = "Incremental"
	ModeLoad        Mode = "Load"
)

func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeIncremental, ModeLoad:
		return Mode(s), nil
	}
	return "", errors.Errorf("unknown execution mode %q, expected %s or %s", s, ModeIncremental, ModeLoad)
}

type filterYAML struct {
	Area1 []string `yaml:"impacted_business_area_1"`
	Area2 []string `yaml:"impacted_business_area_2"`
	Area3 []string `yaml:"impacted_business_area_3"`
	Area4 []string `yaml:"impacted_business_area_4"`
	Area5 []string `yaml:"impacted_business_area_5"`
	Area6 []string `yaml:"impacted_business_area_6"`
}

func (f filterYAML) filter() Filter {
	return Filter{f.Area1, f.Area2, f.Area3, f.Area4, f.Area5, f.Area6}
}

type siteYAML struct {
	Name            string     `yaml:"name"`
	LoadFilterValue filterYAML `yaml:"load_filter_value"`
}

// Sites is an ordered list of site filters. It unmarshals from either a list
// of {name, load_filter_value} entries or a mapping of site name to
// {load_filter_value}; mapping order is kept.
type Sites []Site

func (s *Sites) UnmarshalYAML(unmarshal func(interface{}) error) error {
	entries := make([]siteYAML, 0)
	if err := unmarshal(&entries); err == nil {
		out := make(Sites, 0, len(entries))
		for i, e := range entries {
			if e.Name == "" {
				return errors.Errorf("site #%d has no name", i)
			}
			out = append(out, Site{Name: e.Name, Filter: e.LoadFilterValue.filter()})
		}
		*s = out
		return nil
	}

	var ms yaml.MapSlice
	if err := unmarshal(&ms); err != nil {
		return errors.Wrap(err, "sites must be a list or a mapping")
	}

	out := make(Sites, 0, len(ms))
	for _, item := range ms {
		b, err := yaml.Marshal(item.Value)
		if err != nil {
			return errors.Wrap(err, "re-encode site")
		}
		var e siteYAML
		if err := yaml.Unmarshal(b, &e); err != nil {
			return errors.Wrapf(err, "decode site %v", item.Key)
		}
		out = append(out, Site{Name: fmt.Sprint(item.Key), Filter: e.LoadFilterValue.filter()})
	}
	*s = out
	return nil
}

// SiteConfig keeps one site list per execution mode.
type SiteConfig struct {
	Incremental Sites `yaml:"incremental_load_sites"`
	Load        Sites `yaml:"initial_load_sites"`
}

func (c SiteConfig) For(mode Mode) Sites {
	if mode == ModeLoad {
		return c.Load
	}
	return c.Incremental
}

func (c SiteConfig) Validate() error {
	if len(c.Incremental) == 0 && len(c.Load) == 0 {
		return errors.New("no sites configured")
	}
	return nil
}
