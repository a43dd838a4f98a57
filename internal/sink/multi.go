package sink

import "github.com/mfenderov/cvf-papers/pkg/models"

type multi []Sink

// Multi fans every record out to all sinks, in order. The first error
// stops the fan-out for that record.
func Multi(sinks ...Sink) Sink {
	var m multi
	for _, s := range sinks {
		if s != nil {
			m = append(m, s)
		}
	}
	return m
}

func (m multi) Write(p models.Paper) error {
	for _, s := range m {
		if err := s.Write(p); err != nil {
			return err
		}
	}
	return nil
}

// Func adapts a function to a Sink.
type Func func(p models.Paper) error

func (f Func) Write(p models.Paper) error { return f(p) }
