// Package telemetry publishes decoded dimmer readings to Prometheus and MQTT
package telemetry

// Sink receives one telemetry quantity
type Sink interface {
	Publish(value float64)
}

// Fanout publishes every value to all of its sinks
type Fanout []Sink

func (f Fanout) Publish(value float64) {
	for _, s := range f {
		if s != nil {
			s.Publish(value)
		}
	}
}

// Join returns the non-nil sinks as one, or nil when there are none
func Join(sinks ...Sink) Sink {
	var out Fanout
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	switch len(out) {
	case 0:
		return nil
	case 1:
		return out[0]
	default:
		return out
	}
}
