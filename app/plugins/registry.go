package plugins

import (
	"fmt"
	"sort"
	"strings"

	"github.com/kilianp07/planboard/config"
	"github.com/kilianp07/planboard/core/ptu"
	"github.com/kilianp07/planboard/core/settlement"
)

// MeterDataFactory builds the metering collaborator of settlement.
type MeterDataFactory func(conf config.MeterDataConfig, cal *ptu.Calendar) (settlement.MeterDataProvider, error)

var MeterData = map[string]MeterDataFactory{}

func RegisterMeterData(name string, f MeterDataFactory) { MeterData[strings.ToLower(name)] = f }

// NewMeterData creates the provider selected by conf.Type.
func NewMeterData(conf config.MeterDataConfig, cal *ptu.Calendar) (settlement.MeterDataProvider, error) {
	f, ok := MeterData[strings.ToLower(conf.Type)]
	if !ok {
		return nil, fmt.Errorf("unknown meter data type %q", conf.Type)
	}
	return f(conf, cal)
}

// MeterDataTypes lists the registered provider names.
func MeterDataTypes() []string {
	names := make([]string, 0, len(MeterData))
	for n := range MeterData {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
