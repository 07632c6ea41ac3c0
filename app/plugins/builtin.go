package plugins

import (
	"github.com/kilianp07/planboard/config"
	"github.com/kilianp07/planboard/core/ptu"
	"github.com/kilianp07/planboard/core/settlement"
	"github.com/kilianp07/planboard/infra/meterdata"
)

func init() {
	RegisterMeterData("static", func(config.MeterDataConfig, *ptu.Calendar) (settlement.MeterDataProvider, error) {
		return settlement.NewStaticMeterData(), nil
	})
	RegisterMeterData("influx", func(conf config.MeterDataConfig, cal *ptu.Calendar) (settlement.MeterDataProvider, error) {
		return meterdata.NewInfluxProvider(conf.Influx, cal), nil
	})
}
