package metrics

import (
	"time"

	"github.com/asakaida/polyload/internal/services/eagerload"
)

type loadObserver struct {
	collector *Collector
	exporter  *PrometheusExporter
}

var _ eagerload.Observer = (*loadObserver)(nil)

// Observer returns an eager loader observer that records into collector and,
// when it is not nil, exporter.
func Observer(collector *Collector, exporter *PrometheusExporter) eagerload.Observer {
	return &loadObserver{collector: collector, exporter: exporter}
}

func (o *loadObserver) ObserveFetch(table string, rows int, duration time.Duration, err error) {
	seconds := duration.Seconds()
	o.collector.RecordFetch(table, rows, seconds, err != nil)
	if o.exporter != nil {
		o.exporter.RecordFetch(table, rows, seconds, err != nil)
	}
}

func (o *loadObserver) ObserveSkip(entity, relation string, records int) {
	o.collector.RecordSkip(entity, relation, records)
	if o.exporter != nil {
		o.exporter.RecordSkip(entity, relation, records)
	}
}

func (o *loadObserver) ObserveUnresolved(relation, discriminator string, records int) {
	o.collector.RecordUnresolved(discriminator, records)
	if o.exporter != nil {
		o.exporter.RecordUnresolved(relation, discriminator, records)
	}
}
